// Package client provides a load generator for a simulated cluster.
//
// The Client joins the cluster's network as one more endpoint, sends
// read/write/cas requests to random nodes and matches each reply to its
// request by in_reply_to. Outcomes are recorded per request kind: a cas
// rejected with code 20 or 22 counts as a failure with that code, and a
// request that gets no reply within RequestTimeout counts as a failure with
// code 0.
//
// # Basic Usage
//
//	c := cluster.New(cluster.DefaultConfig())
//	c.CreateNodes(3, "n")
//	c.StartAll(ctx)
//
//	config := client.DefaultConfig()
//	config.WriteRatio = 0.3
//	cl := client.New(c, config)
//
//	snap := cl.RunFor(ctx, 10*time.Second)
//	fmt.Printf("Total: %d, RPS: %.2f\n", snap.TotalRequests, snap.RPS)
//
// Call can also be used directly once the client is started.
package client
