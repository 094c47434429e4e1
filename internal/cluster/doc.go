// Package cluster runs several KV nodes inside one process.
//
// Every node joins a shared bus.Network under its own address and serves
// requests from any other endpoint on that network, such as the load
// generating client. The network is also where faults are injected.
//
// # Basic Usage
//
//	c := cluster.New(cluster.DefaultConfig())
//	if err := c.CreateNodes(3, "n"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.StartAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.StopAll()
//
//	ep, _ := c.Network().Join("c1")
//	// send read/write/cas to "n1", "n2", ...
//
// # Shutdown
//
// StopAll closes the network. Each node sees its inbound bus close, waits
// for in-flight handlers and returns; only nodes that stopped for another
// reason are reported as errors.
package cluster
