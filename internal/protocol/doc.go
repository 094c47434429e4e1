// Package protocol defines the workload message bodies and the reply
// encoder.
//
// Envelopes and the common body header come from the Maelstrom Go library;
// this package adds the typed read/write/cas/echo bodies, strict decoding of
// required fields, an Encoder stamping outbound bodies with a monotonically
// increasing msg_id, and the init handshake.
package protocol
