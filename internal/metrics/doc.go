// Package metrics provides request metrics collection and reporting.
//
// Metrics collects request counts, success/failure rates, latency and
// throughput. Every record is tagged with the message kind (read, write,
// cas, ...) and failures carry the Maelstrom error code, so a snapshot can
// tell a CAS precondition failure (22) from a missing key (20) or a client
// timeout (0).
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	// ... handle a cas request ...
//	m.RecordFailure("cas", 22, time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Println(snap.ByKind["cas"].ErrorCodes[22])
//
// # Thread Safety
//
// Counters are atomic; the per-kind table and latency samples are guarded
// by a RWMutex.
package metrics
