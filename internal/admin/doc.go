// Package admin serves an optional HTTP interface for operators.
//
// The server never touches the protocol channel; it only reads node and
// scenario state.
//
// # Endpoints
//
//	GET /health          liveness check
//	GET /api/stats       state, store size and request metrics of every node
//	GET /api/nodes/{id}  the same for one node
//	GET /api/scenario    client metrics, chaos and recovery stats of a running scenario
//	GET /api/presets     available scenario presets
//	GET /ws              websocket stream of events and periodic stats
package admin
