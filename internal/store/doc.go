// Package store defines the ordered key-score store contract the poller runs
// against, plus the shared pieces backends use to implement it.
//
// A store holds named sorted sets of (score, member) pairs ordered by score,
// with ties broken by member byte order. Keys are created lazily on first
// write and vanish when their last member is removed, so an absent key is
// simply an empty set.
//
// Optimistic transactions
//
//	err := s.Watch(ctx, func(tx store.Txn) error {
//	    items, err := tx.Range(ctx, "jobs", 0, 0, false) // reads observe live data
//	    if err != nil || len(items) == 0 {
//	        return err
//	    }
//	    tx.UnionStore("jobs-snapshot", "jobs") // writes are buffered
//	    tx.Remove("jobs", items[0].Member)
//	    return nil
//	}, "jobs", "jobs-snapshot")
//	if errors.Is(err, store.ErrConflict) {
//	    // a watched key changed before commit: nothing was applied, retry
//	}
//
// Watch runs exactly one attempt. Retrying is the caller's job.
//
// Backends: memstore (tests, single process), pebblestore (embedded, durable)
// and redisstore (shared across processes).
package store
