// Package worker provides a goroutine pool for concurrent job execution.
//
// The Pool runs a fixed number of worker goroutines over a shared, bounded
// queue. A job returning an error fails the whole pool: its context is
// cancelled, Failed() is closed and Err() reports the first error. This is
// how a request handler's fatal error reaches the node loop.
//
// # Basic Usage
//
//	pool := worker.NewPool(4)
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	pool.Submit(func(ctx context.Context) error {
//	    return handle(ctx, msg)
//	})
//
//	select {
//	case <-pool.Failed():
//	    return pool.Err()
//	default:
//	}
//
// # Shutdown
//
// Drain() stops accepting jobs and waits for queued and running ones.
// Stop() cancels the pool and drops whatever is still queued.
package worker
