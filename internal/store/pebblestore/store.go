// Package pebblestore implements store.Store on an embedded Pebble database.
//
// Each sorted set is kept as two ordered indexes (member -> score, and
// score+member -> nothing) plus a meta record holding the set's cardinality
// and a version counter. Writes are serialised inside the process and every
// commit bumps the version of each modified set; Watch compares versions at
// commit time to detect conflicts. Pebble takes an exclusive lock on its
// directory, so one process owns a store at a time.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	pebbledb "github.com/prakharsharma/redis-sorted-set-based-poller/internal/storage/pebble"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	db     *pebbledb.DB
	ownsDB bool
	mu     sync.Mutex
	closed atomic.Bool

	beforeCommit func()
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a database and returns a store that owns it.
func Open(opts pebbledb.Options) (*Store, error) {
	db, err := pebbledb.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, ownsDB: true}, nil
}

// New returns a store over an existing database. Close leaves db open.
func New(db *pebbledb.DB) *Store {
	return &Store{db: db}
}

// getter abstracts point reads over the live database or a snapshot.
type getter interface {
	Get(key []byte) ([]byte, error)
}

type snapGetter struct{ snap *pebble.Snapshot }

func (g snapGetter) Get(key []byte) ([]byte, error) {
	v, closer, err := g.snap.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func loadMeta(g getter, key string) (meta, error) {
	raw, err := g.Get(metaKey(key))
	if errors.Is(err, pebbledb.ErrNotFound) {
		return meta{}, nil
	}
	if err != nil {
		return meta{}, fmt.Errorf("pebblestore: read meta %q: %w", key, err)
	}
	return decodeMeta(raw)
}

func (s *Store) Range(_ context.Context, key string, start, stop int64, reverse bool) ([]store.Item, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()

	m, err := loadMeta(snapGetter{snap}, key)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := store.NormalizeRange(int(m.card), start, stop)
	if !ok {
		return nil, nil
	}
	lower, upper := scoreBounds(key)
	it, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	valid, step := it.First, it.Next
	if reverse {
		valid, step = it.Last, it.Prev
	}
	out := make([]store.Item, 0, hi-lo+1)
	rank := 0
	for ok := valid(); ok && rank <= hi; ok = step() {
		if rank >= lo {
			score, member, err := decodeScoreKey(key, it.Key())
			if err != nil {
				return nil, err
			}
			out = append(out, store.Item{Score: score, Member: member})
		}
		rank++
	}
	return out, it.Error()
}

func (s *Store) Score(_ context.Context, key, member string) (float64, bool, error) {
	if s.closed.Load() {
		return 0, false, store.ErrClosed
	}
	raw, err := s.db.Get(memberKey(key, member))
	if errors.Is(err, pebbledb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	score, err := decodeScore(raw)
	return score, err == nil, err
}

func (s *Store) Card(_ context.Context, key string) (int64, error) {
	if s.closed.Load() {
		return 0, store.ErrClosed
	}
	m, err := loadMeta(s.db, key)
	return m.card, err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.Card(ctx, key)
	return n > 0, err
}

func (s *Store) Add(ctx context.Context, key string, items ...store.Item) error {
	var b store.Batch
	b.Add(key, items...)
	_, err := s.commit(ctx, &b, nil)
	return err
}

func (s *Store) Remove(ctx context.Context, key string, members ...string) (int64, error) {
	var b store.Batch
	b.Remove(key, members...)
	res, err := s.commit(ctx, &b, nil)
	if err != nil || len(res.Counts) == 0 {
		return 0, err
	}
	return res.Counts[0], nil
}

func (s *Store) UnionStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	var b store.Batch
	b.UnionStore(dest, keys...)
	res, err := s.commit(ctx, &b, nil)
	if err != nil {
		return 0, err
	}
	return res.Counts[0], nil
}

// Watch snapshots the version of each key, runs fn against live data and
// commits fn's writes only if no watched version moved.
func (s *Store) Watch(ctx context.Context, fn func(tx store.Txn) error, keys ...string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	seen := make(map[string]uint64, len(keys))
	for _, k := range keys {
		m, err := loadMeta(s.db, k)
		if err != nil {
			return err
		}
		seen[k] = m.version
	}

	tx := &txn{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.beforeCommit != nil {
		s.beforeCommit()
	}
	_, err := s.commit(ctx, &tx.Batch, seen)
	return err
}

func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	_, err := loadMeta(s.db, "")
	return err
}

func (s *Store) Close() error {
	if s.closed.Swap(true) || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *Store) loadSet(key string) (*store.ZSet, error) {
	lower, upper := memberBounds(key)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	z := store.NewZSet()
	for ok := it.First(); ok; ok = it.Next() {
		score, err := decodeScore(it.Value())
		if err != nil {
			return nil, err
		}
		z.Add(store.Item{Score: score, Member: string(it.Key()[len(lower):])})
	}
	return z, it.Error()
}

func (s *Store) commit(ctx context.Context, b *store.Batch, seen map[string]uint64) (*store.Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	metas := make(map[string]meta)
	metaFor := func(k string) (meta, error) {
		if m, ok := metas[k]; ok {
			return m, nil
		}
		m, err := loadMeta(s.db, k)
		if err == nil {
			metas[k] = m
		}
		return m, err
	}
	for k, v := range seen {
		m, err := metaFor(k)
		if err != nil {
			return nil, err
		}
		if m.version != v {
			return nil, store.ErrConflict
		}
	}
	if b.Len() == 0 {
		return &store.Result{}, nil
	}

	var loadErr error
	orig := make(map[string]*store.ZSet)
	res := store.Apply(b.Ops(), func(k string) *store.ZSet {
		z, err := s.loadSet(k)
		if err != nil && loadErr == nil {
			loadErr = err
		}
		orig[k] = z
		return z
	})
	if loadErr != nil {
		return nil, fmt.Errorf("pebblestore: load set: %w", loadErr)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for k := range res.Changed {
		next := res.Sets[k]
		if err := writeDiff(batch, k, orig[k], next); err != nil {
			return nil, err
		}
		m, err := metaFor(k)
		if err != nil {
			return nil, err
		}
		m.version++
		m.card = int64(next.Len())
		if err := batch.Set(metaKey(k), m.encode(), nil); err != nil {
			return nil, err
		}
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("pebblestore: commit: %w", err)
	}
	return res, nil
}

// writeDiff records in batch the index changes that turn prev into next.
func writeDiff(batch *pebble.Batch, key string, prev, next *store.ZSet) error {
	if prev == nil {
		prev = store.NewZSet()
	}
	for _, it := range prev.Items() {
		score, ok := next.Score(it.Member)
		if ok && score == it.Score {
			continue
		}
		if err := batch.Delete(scoreKey(key, it.Score, it.Member), nil); err != nil {
			return err
		}
		if !ok {
			if err := batch.Delete(memberKey(key, it.Member), nil); err != nil {
				return err
			}
		}
	}
	for _, it := range next.Items() {
		if score, ok := prev.Score(it.Member); ok && score == it.Score {
			continue
		}
		if err := batch.Set(memberKey(key, it.Member), encodeScore(it.Score), nil); err != nil {
			return err
		}
		if err := batch.Set(scoreKey(key, it.Score, it.Member), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// txn reads committed data and buffers writes.
type txn struct {
	store.Batch
	s *Store
}

func (t *txn) Range(ctx context.Context, key string, start, stop int64, reverse bool) ([]store.Item, error) {
	return t.s.Range(ctx, key, start, stop, reverse)
}

func (t *txn) Score(ctx context.Context, key, member string) (float64, bool, error) {
	return t.s.Score(ctx, key, member)
}

func (t *txn) Card(ctx context.Context, key string) (int64, error) { return t.s.Card(ctx, key) }

func (t *txn) Exists(ctx context.Context, key string) (bool, error) { return t.s.Exists(ctx, key) }
