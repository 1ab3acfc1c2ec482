package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// Poller claims items from one queue key. Its methods are safe for
// concurrent use; Run itself is a single sequential loop.
type Poller struct {
	store       store.Store
	key         string
	snapshotKey string
	reverse     bool
	sleep       time.Duration
	mergeMode   MergeMode
	shutdownTTL time.Duration
	requeue     bool
	handler     Handler
	logger      log.Logger
	observer    Observer

	conflicts atomic.Uint64
}

// New returns a poller over s.
func New(s store.Store, opts Options) (*Poller, error) {
	if opts.Key == "" {
		return nil, ErrEmptyKey
	}
	if _, err := ParseMergeMode(string(opts.MergeMode)); err != nil {
		return nil, err
	}
	opts.setDefaults()
	return &Poller{
		store:       s,
		key:         opts.Key,
		snapshotKey: SnapshotKey(opts.Key),
		reverse:     opts.Reverse,
		sleep:       opts.SleepDuration,
		mergeMode:   opts.MergeMode,
		shutdownTTL: opts.ShutdownTimeout,
		requeue:     opts.RequeueFailed,
		handler:     opts.Handler,
		logger:      opts.Logger.WithComponent("poller").With(log.Str(log.QueueKey, opts.Key)),
		observer:    opts.Observer,
	}, nil
}

// Key returns the queue key.
func (p *Poller) Key() string { return p.key }

// SnapshotKey returns the snapshot key.
func (p *Poller) SnapshotKey() string { return p.snapshotKey }

// Conflicts returns how many transaction attempts were retried.
func (p *Poller) Conflicts() uint64 { return p.conflicts.Load() }

// atomically runs fn in a transaction watching both keys, retrying from
// scratch whenever the store reports a conflict.
func (p *Poller) atomically(ctx context.Context, op string, fn func(tx store.Txn) error) error {
	for attempt := 1; ; attempt++ {
		err := p.store.Watch(ctx, fn, p.key, p.snapshotKey)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		p.conflicts.Add(1)
		p.observer.ObserveConflict(p.key)
		p.logger.Debug("transaction conflict, retrying", log.Str(log.OperationKey, op), log.Int("attempt", attempt))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Dequeue claims the head of the queue if the handler says it is ready.
// claimed is false when the queue is empty or the head is not ready. A
// failing Ready callback is reported as *CallbackError and claims nothing.
func (p *Poller) Dequeue(ctx context.Context) (item store.Item, claimed bool, err error) {
	start := time.Now()
	err = p.atomically(ctx, "dequeue", func(tx store.Txn) error {
		item, claimed = store.Item{}, false

		head, err := tx.Range(ctx, p.key, 0, 0, p.reverse)
		if err != nil {
			return err
		}
		if len(head) == 0 {
			return nil
		}
		// Refresh the snapshot before the removal is queued so that the
		// claimed member is tracked from the moment it leaves the queue.
		tx.UnionStore(p.snapshotKey, p.key)

		ok, err := p.ready(ctx, head[0])
		if err != nil {
			return err
		}
		if ok {
			tx.Remove(p.key, head[0].Member)
			item, claimed = head[0], true
		}
		return nil
	})
	if err != nil {
		return store.Item{}, false, err
	}
	p.observer.ObserveClaim(p.key, claimed, time.Since(start))
	if claimed {
		p.logger.Debug("claimed item", log.Str("member", item.Member), log.Float64("score", item.Score))
	}
	return item, claimed, nil
}

// Enqueue adds item to the queue or updates its score.
func (p *Poller) Enqueue(ctx context.Context, items ...store.Item) error {
	for _, it := range items {
		if it.Member == "" {
			return ErrEmptyMember
		}
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if err := p.store.Add(ctx, p.key, items...); err != nil {
		return fmt.Errorf("poller: enqueue: %w", err)
	}
	return nil
}

// Complete marks member as durably processed.
func (p *Poller) Complete(ctx context.Context, member string) error {
	if _, err := p.store.Remove(ctx, p.snapshotKey, member); err != nil {
		return fmt.Errorf("poller: complete %q: %w", member, err)
	}
	return nil
}

// Remove cancels member: it is dropped from both the queue and the snapshot.
// It reports whether the member was found in either.
func (p *Poller) Remove(ctx context.Context, member string) (bool, error) {
	var found bool
	err := p.atomically(ctx, "remove", func(tx store.Txn) error {
		_, inQueue, err := tx.Score(ctx, p.key, member)
		if err != nil {
			return err
		}
		_, inSnap, err := tx.Score(ctx, p.snapshotKey, member)
		if err != nil {
			return err
		}
		found = inQueue || inSnap
		tx.Remove(p.key, member)
		tx.Remove(p.snapshotKey, member)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("poller: remove %q: %w", member, err)
	}
	return found, nil
}

// Stats describes the state of a queue.
type Stats struct {
	Key         string `json:"key"`
	SnapshotKey string `json:"snapshot_key"`
	Pending     int64  `json:"pending"`
	Snapshot    int64  `json:"snapshot"`
	// InFlight estimates claimed but not completed items.
	InFlight  int64  `json:"in_flight"`
	Conflicts uint64 `json:"conflicts"`
}

// Stats reads the cardinalities of both keys.
func (p *Poller) Stats(ctx context.Context) (Stats, error) {
	pending, err := p.store.Card(ctx, p.key)
	if err != nil {
		return Stats{}, fmt.Errorf("poller: stats: %w", err)
	}
	snap, err := p.store.Card(ctx, p.snapshotKey)
	if err != nil {
		return Stats{}, fmt.Errorf("poller: stats: %w", err)
	}
	return Stats{
		Key:         p.key,
		SnapshotKey: p.snapshotKey,
		Pending:     pending,
		Snapshot:    snap,
		InFlight:    max(snap-pending, 0),
		Conflicts:   p.Conflicts(),
	}, nil
}

// List returns up to limit queued items in claim order. limit <= 0 lists all.
func (p *Poller) List(ctx context.Context, limit int) ([]store.Item, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := p.store.Range(ctx, p.key, 0, stop, p.reverse)
	if err != nil {
		return nil, fmt.Errorf("poller: list: %w", err)
	}
	return items, nil
}

// InFlight returns snapshot members that are no longer queued: items that are
// being processed, or were abandoned by a crashed worker.
func (p *Poller) InFlight(ctx context.Context) ([]store.Item, error) {
	snap, err := p.store.Range(ctx, p.snapshotKey, 0, -1, p.reverse)
	if err != nil {
		return nil, fmt.Errorf("poller: in-flight: %w", err)
	}
	out := make([]store.Item, 0)
	for _, it := range snap {
		_, queued, err := p.store.Score(ctx, p.key, it.Member)
		if err != nil {
			return nil, fmt.Errorf("poller: in-flight: %w", err)
		}
		if !queued {
			out = append(out, it)
		}
	}
	return out, nil
}
