// Package bus provides the transports a node talks through.
//
// A node only sees two narrow interfaces: Inbound, which yields decoded
// envelopes until it reports ErrClosed, and Outbound, which accepts reply
// envelopes and may fail once the transport shuts down.
//
// Three transports are provided:
//
//   - Pipe: an in-memory queue, for tests and embedding.
//   - Stdio: newline-delimited JSON over stdin/stdout, as a Maelstrom
//     harness drives its nodes.
//   - Network: an in-process router between many endpoints with per-address
//     fault injection (partitions, delays), used by the local simulator.
package bus
