// Package memstore is an in-process store.Store backed by B-tree sorted sets.
// It is used by tests and by single-process workers that do not need
// durability. Watch implements optimistic concurrency with per-key versions.
package memstore

import (
	"context"
	"sync"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sets     map[string]*store.ZSet
	versions map[string]uint64
	closed   bool

	// beforeCommit, when set, runs after a Watch callback returns and before
	// the commit checks versions. Tests use it to inject concurrent writes.
	beforeCommit func()
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		sets:     make(map[string]*store.ZSet),
		versions: make(map[string]uint64),
	}
}

func (s *Store) Range(_ context.Context, key string, start, stop int64, reverse bool) ([]store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	z := s.sets[key]
	if z == nil {
		return nil, nil
	}
	return z.Range(start, stop, reverse), nil
}

func (s *Store) Score(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, store.ErrClosed
	}
	z := s.sets[key]
	if z == nil {
		return 0, false, nil
	}
	score, ok := z.Score(member)
	return score, ok, nil
}

func (s *Store) Card(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	if z := s.sets[key]; z != nil {
		return int64(z.Len()), nil
	}
	return 0, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.Card(ctx, key)
	return n > 0, err
}

func (s *Store) Add(_ context.Context, key string, items ...store.Item) error {
	var b store.Batch
	b.Add(key, items...)
	_, err := s.commit(&b, nil)
	return err
}

func (s *Store) Remove(_ context.Context, key string, members ...string) (int64, error) {
	var b store.Batch
	b.Remove(key, members...)
	res, err := s.commit(&b, nil)
	if err != nil || len(res.Counts) == 0 {
		return 0, err
	}
	return res.Counts[0], nil
}

func (s *Store) UnionStore(_ context.Context, dest string, keys ...string) (int64, error) {
	var b store.Batch
	b.UnionStore(dest, keys...)
	res, err := s.commit(&b, nil)
	if err != nil {
		return 0, err
	}
	return res.Counts[0], nil
}

// Watch records the versions of keys, runs fn against live data and commits
// the buffered writes only if none of the watched versions moved.
func (s *Store) Watch(ctx context.Context, fn func(tx store.Txn) error, keys ...string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrClosed
	}
	seen := make(map[string]uint64, len(keys))
	for _, k := range keys {
		seen[k] = s.versions[k]
	}
	s.mu.RUnlock()

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
	_, err := s.commit(&tx.Batch, seen)
	return err
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// commit applies b atomically. When seen is non-nil the commit is aborted
// with ErrConflict if any listed key changed version.
func (s *Store) commit(b *store.Batch, seen map[string]uint64) (*store.Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	for k, v := range seen {
		if s.versions[k] != v {
			return nil, store.ErrConflict
		}
	}
	if b.Len() == 0 {
		return &store.Result{}, nil
	}
	res := store.Apply(b.Ops(), func(k string) *store.ZSet { return s.sets[k] })
	for k := range res.Changed {
		if z := res.Sets[k]; z.Len() > 0 {
			s.sets[k] = z
		} else {
			delete(s.sets, k)
		}
		s.versions[k]++
	}
	return res, nil
}

// txn reads through to the live store and buffers writes.
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
