// Package pebbledb wraps a Pebble database with an fsync policy, batch
// commits that honour it, a metrics hook and a logger bridge.
//
// Usage:
//
//	db, err := pebbledb.Open(pebbledb.Options{
//	    DataDir: "./data",
//	    Fsync:   pebbledb.FsyncModeInterval,
//	    Logger:  logger,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	v, err := db.Get([]byte("k"))
//	if errors.Is(err, pebbledb.ErrNotFound) { /* absent */ }
package pebbledb
