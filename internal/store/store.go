package store

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrConflict is returned by Watch when a watched key changed between the
	// start of the attempt and its commit. No buffered write was applied.
	ErrConflict = errors.New("store: watched key modified concurrently")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrInvalidScore rejects NaN scores, which have no position in the order.
	ErrInvalidScore = errors.New("store: score is not a number")
)

// Item is a single sorted-set entry.
type Item struct {
	Score  float64 `json:"score"`
	Member string  `json:"member"`
}

// Validate reports whether the item can be stored.
func (it Item) Validate() error {
	if math.IsNaN(it.Score) {
		return fmt.Errorf("%w: member %q", ErrInvalidScore, it.Member)
	}
	return nil
}

// Reader is the read half shared by stores and transactions.
type Reader interface {
	// Range returns items with rank in [start, stop], inclusive, in ascending
	// score order, or descending when reverse is set. Negative ranks count
	// from the end (-1 is the last item). An absent key yields no items.
	Range(ctx context.Context, key string, start, stop int64, reverse bool) ([]Item, error)
	// Score returns the member's score and whether the member is present.
	Score(ctx context.Context, key, member string) (float64, bool, error)
	// Card returns the number of members, 0 for an absent key.
	Card(ctx context.Context, key string) (int64, error)
	// Exists reports whether key holds at least one member.
	Exists(ctx context.Context, key string) (bool, error)
}

// Writer buffers mutations inside a transaction. Nothing is visible until the
// surrounding Watch commits.
type Writer interface {
	// Add inserts members or overwrites their score.
	Add(key string, items ...Item)
	// AddNX inserts members that are not present; existing scores are kept.
	AddNX(key string, items ...Item)
	// Remove deletes members; unknown members are ignored.
	Remove(key string, members ...string)
	// UnionStore overwrites dest with the union of keys, summing the scores of
	// members present in more than one source. An empty union deletes dest.
	UnionStore(dest string, keys ...string)
}

// Txn is the view handed to a Watch callback.
type Txn interface {
	Reader
	Writer
}

// Store is the ordered key-score store contract.
type Store interface {
	Reader

	// Add inserts or updates members of key.
	Add(ctx context.Context, key string, items ...Item) error
	// Remove deletes members of key and returns how many were present.
	Remove(ctx context.Context, key string, members ...string) (int64, error)
	// UnionStore overwrites dest with the sum-of-scores union of keys and
	// returns the resulting cardinality.
	UnionStore(ctx context.Context, dest string, keys ...string) (int64, error)

	// Watch runs fn once against the live store while watching keys. When fn
	// returns nil the writes it buffered are committed atomically, unless a
	// watched key changed in the meantime, in which case ErrConflict is
	// returned and nothing is applied. An error from fn discards the buffer
	// and is returned unchanged.
	Watch(ctx context.Context, fn func(tx Txn) error, keys ...string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// NormalizeRange maps a possibly negative inclusive rank range onto [0, n).
// ok is false when the range selects nothing.
func NormalizeRange(n int, start, stop int64) (lo, hi int, ok bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if start >= size || start > stop {
		return 0, 0, false
	}
	if stop >= size {
		stop = size - 1
	}
	return int(start), int(stop), true
}
