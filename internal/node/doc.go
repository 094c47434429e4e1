// Package node implements the request-handling loop of a single node.
//
// A Node reads envelopes from a bus.Inbound, dispatches each one by its
// body "type" to a registered handler and sends replies through a
// bus.Outbound. Handlers run on a worker pool, so the loop accepts the next
// request without waiting for the previous reply to be sent; replies are
// correlated only by in_reply_to.
//
// # Roles
//
// NewKV serves read, write and cas against a store.Store. Any other message
// kind is a protocol violation and stops the node with ErrUnexpectedMessage.
// NewEcho answers echo requests and ignores everything else.
//
//	n := node.NewKV(node.Config{ID: id.ID, StartMsgID: 1}, store.NewLocked(), conn, conn)
//	if err := n.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Lifecycle
//
// Running -> Draining. The loop leaves Running when the inbound bus reports
// bus.ErrClosed (it then waits for in-flight handlers and returns nil), or
// when a handler fails, a message cannot be handled or the context is
// cancelled (it returns the error).
//
// # CAS errors
//
// A cas against a missing key is answered with error code 20
// "Key does not exist"; a cas whose expected value does not match is
// answered with code 22 "Value does not match". Neither stops the node.
package node
