// Package store provides the node's in-memory key-value store.
//
// Keys and values are arbitrary JSON values compared by exact structural
// equality. Two implementations share the Store contract:
//
//   - Locked guards one map with a sync.RWMutex.
//   - Owned hands the map to a single goroutine; callers talk to it over a
//     request channel.
//
// # Basic Usage
//
//	s := store.NewLocked()
//	s.Insert(store.MustValue("x"), store.MustValue(1))
//
//	err := s.CompareAndSwap(store.MustValue("x"), store.MustValue(1), store.MustValue(2))
//	switch {
//	case errors.Is(err, store.ErrKeyNotFound):
//	case errors.Is(err, store.ErrPreconditionFailed):
//	}
//
// # Atomicity
//
// Get, Insert and CompareAndSwap are atomic with respect to each other.
// Of N callers racing CompareAndSwap with the same expected value, exactly
// one succeeds.
package store
