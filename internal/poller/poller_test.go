package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store/memstore"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

func newPoller(t *testing.T, s store.Store, opts Options) *Poller {
	t.Helper()
	if opts.Key == "" {
		opts.Key = "jobs"
	}
	p, err := New(s, opts)
	require.NoError(t, err)
	return p
}

func rangeAll(t *testing.T, s store.Store, key string) []store.Item {
	t.Helper()
	items, err := s.Range(context.Background(), key, 0, -1, false)
	require.NoError(t, err)
	return items
}

func memberList(items []store.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Member)
	}
	return out
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(memstore.New(), Options{})
	require.ErrorIs(t, err, ErrEmptyKey)

	_, err = New(memstore.New(), Options{Key: "jobs", MergeMode: "max"})
	require.Error(t, err)

	p := newPoller(t, memstore.New(), Options{Key: "jobs"})
	assert.Equal(t, "jobs-snapshot", p.SnapshotKey())
	assert.Equal(t, time.Second, p.sleep)
	assert.Equal(t, MergeRestore, p.mergeMode)
}

func TestDequeueStrictOrder(t *testing.T) {
	tests := []struct {
		name    string
		reverse bool
		want    []string
	}{
		{"ascending", false, []string{"a", "b", "c", "d"}},
		{"descending", true, []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p := newPoller(t, memstore.New(), Options{Reverse: tt.reverse})
			require.NoError(t, p.Enqueue(ctx,
				store.Item{Score: 2, Member: "c"},
				store.Item{Score: 1, Member: "a"},
				store.Item{Score: 3, Member: "d"},
				store.Item{Score: 2, Member: "b"},
			))
			var got []string
			for {
				it, ok, err := p.Dequeue(ctx)
				require.NoError(t, err)
				if !ok {
					break
				}
				got = append(got, it.Member)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScenarioClaimKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newPoller(t, s, Options{})

	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 5, Member: "x"}))
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "y"}))

	it, ok, err := p.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Item{Score: 1, Member: "y"}, it)
	assert.Equal(t, []string{"x"}, memberList(rangeAll(t, s, "jobs")))
	assert.Equal(t, []string{"y", "x"}, memberList(rangeAll(t, s, "jobs-snapshot")))

	require.NoError(t, p.Complete(ctx, "y"))
	assert.Equal(t, []string{"x"}, memberList(rangeAll(t, s, "jobs-snapshot")))
}

func TestScenarioNotReadyStaysQueued(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	h := HandlerFuncs{ReadyFunc: func(context.Context, store.Item) (bool, error) { return false, nil }}
	p := newPoller(t, s, Options{Handler: h})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 3, Member: "z"}))

	it, ok, err := p.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, store.Item{}, it)
	assert.Equal(t, []string{"z"}, memberList(rangeAll(t, s, "jobs")))
	// the snapshot refresh is committed even though nothing was claimed
	assert.Equal(t, []string{"z"}, memberList(rangeAll(t, s, "jobs-snapshot")))
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newPoller(t, s, Options{})
	_, ok, err := p.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	exists, _ := s.Exists(ctx, "jobs-snapshot")
	assert.False(t, exists)
}

func TestReadyErrorClaimsNothing(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	boom := errors.New("predicate down")
	h := HandlerFuncs{ReadyFunc: func(context.Context, store.Item) (bool, error) { return false, boom }}
	p := newPoller(t, s, Options{Handler: h})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}))

	_, ok, err := p.Dequeue(ctx)
	assert.False(t, ok)
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, StageReady, cbErr.Stage)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, memberList(rangeAll(t, s, "jobs")))
}

func TestReadyPanicIsContained(t *testing.T) {
	ctx := context.Background()
	h := HandlerFuncs{ReadyFunc: func(context.Context, store.Item) (bool, error) { panic("bad predicate") }}
	p := newPoller(t, memstore.New(), Options{Handler: h})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}))

	_, _, err := p.Dequeue(ctx)
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.True(t, cbErr.Panicked)
	assert.Contains(t, cbErr.Error(), "bad predicate")
}

func TestScenarioCrashThenRecover(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	worker := newPoller(t, s, Options{})
	require.NoError(t, worker.Enqueue(ctx, store.Item{Score: 5, Member: "x"}, store.Item{Score: 1, Member: "y"}))

	it, ok, err := worker.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "y", it.Member)
	// the worker dies here: no Complete, no re-enqueue

	restarted := newPoller(t, s, Options{})
	rep, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, rep.SnapshotFound)
	assert.True(t, rep.Merged)
	assert.Equal(t, int64(1), rep.Restored)
	assert.Equal(t, int64(1), rep.QueueCard)
	assert.Equal(t, int64(2), rep.SnapshotCard)

	score, ok, err := s.Score(ctx, "jobs", "y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, score)

	stats, err := restarted.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Pending, stats.Snapshot)
	assert.Zero(t, stats.InFlight)

	again, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.False(t, again.Merged, "second recovery must be a no-op")
	assert.Equal(t, rangeAll(t, s, "jobs"), rangeAll(t, s, "jobs-snapshot"))
}

func TestRecoverWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	p := newPoller(t, memstore.New(), Options{})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}))
	rep, err := p.Recover(ctx)
	require.NoError(t, err)
	assert.False(t, rep.SnapshotFound)
	assert.False(t, rep.Merged)
}

func TestRecoverMergeModes(t *testing.T) {
	setup := func(t *testing.T) store.Store {
		ctx := context.Background()
		s := memstore.New()
		// "a" was re-enqueued with a new score while "b" was abandoned
		require.NoError(t, s.Add(ctx, "jobs", store.Item{Score: 10, Member: "a"}))
		require.NoError(t, s.Add(ctx, "jobs-snapshot",
			store.Item{Score: 1, Member: "a"},
			store.Item{Score: 2, Member: "b"},
		))
		return s
	}

	t.Run("restore keeps queued scores", func(t *testing.T) {
		s := setup(t)
		p := newPoller(t, s, Options{MergeMode: MergeRestore})
		rep, err := p.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), rep.Restored)
		assert.Equal(t, []store.Item{{Score: 2, Member: "b"}, {Score: 10, Member: "a"}}, rangeAll(t, s, "jobs"))
	})

	t.Run("sum adds overlapping scores", func(t *testing.T) {
		s := setup(t)
		p := newPoller(t, s, Options{MergeMode: MergeSum})
		rep, err := p.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, MergeSum, rep.Mode)
		assert.Equal(t, []store.Item{{Score: 2, Member: "b"}, {Score: 11, Member: "a"}}, rangeAll(t, s, "jobs"))
	})
}

func TestConcurrentClaimersSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed := newPoller(t, s, Options{})
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, seed.Enqueue(ctx, store.Item{Score: float64(i), Member: fmt.Sprintf("job-%03d", i)}))
	}

	var (
		mu     sync.Mutex
		claims = make(map[string]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		p := newPoller(t, s, Options{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, ok, err := p.Dequeue(ctx)
				if err != nil {
					t.Errorf("dequeue: %v", err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				claims[it.Member]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claims, n)
	for m, c := range claims {
		assert.Equal(t, 1, c, "member %s claimed %d times", m, c)
	}
}

// conflictingStore writes to the queue from "another worker" inside the
// first few transactions so their commit fails.
type conflictingStore struct {
	store.Store
	remaining int
}

func (c *conflictingStore) Watch(ctx context.Context, fn func(tx store.Txn) error, keys ...string) error {
	return c.Store.Watch(ctx, func(tx store.Txn) error {
		if err := fn(tx); err != nil {
			return err
		}
		if c.remaining > 0 {
			c.remaining--
			return c.Store.Add(ctx, "jobs", store.Item{Score: 100, Member: fmt.Sprintf("late-%d", c.remaining)})
		}
		return nil
	}, keys...)
}

func TestConflictIsRetriedTransparently(t *testing.T) {
	ctx := context.Background()
	s := &conflictingStore{Store: memstore.New()}
	p := newPoller(t, s, Options{})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}))

	s.remaining = 2
	it, ok, err := p.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", it.Member)
	assert.Equal(t, uint64(2), p.Conflicts())
	assert.Equal(t, []string{"late-0", "late-1"}, memberList(rangeAll(t, s, "jobs")))
}

func TestRemoveAndViews(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newPoller(t, s, Options{})
	require.NoError(t, p.Enqueue(ctx,
		store.Item{Score: 1, Member: "a"},
		store.Item{Score: 2, Member: "b"},
		store.Item{Score: 3, Member: "c"},
	))
	_, _, err := p.Dequeue(ctx)
	require.NoError(t, err)

	head, err := p.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, memberList(head))

	inflight, err := p.InFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, memberList(inflight))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Key: "jobs", SnapshotKey: "jobs-snapshot", Pending: 2, Snapshot: 3, InFlight: 1}, stats)

	found, err := p.Remove(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = p.Remove(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"b", "c"}, memberList(rangeAll(t, s, "jobs-snapshot")))
}

func TestEnqueueValidation(t *testing.T) {
	p := newPoller(t, memstore.New(), Options{})
	require.ErrorIs(t, p.Enqueue(context.Background(), store.Item{Score: 1}), ErrEmptyMember)
}

func runAsync(ctx context.Context, p *Poller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunProcessesAndCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	var processed []string
	h := HandlerFuncs{ProcessFunc: func(_ context.Context, it store.Item) error {
		processed = append(processed, it.Member)
		if len(processed) == 3 {
			cancel()
		}
		return nil
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond})
	require.NoError(t, p.Enqueue(ctx,
		store.Item{Score: 3, Member: "c"},
		store.Item{Score: 1, Member: "a"},
		store.Item{Score: 2, Member: "b"},
	))

	require.NoError(t, waitRun(t, runAsync(ctx, p)))
	assert.Equal(t, []string{"a", "b", "c"}, processed)
	assert.Empty(t, rangeAll(t, s, "jobs"))
	assert.Empty(t, rangeAll(t, s, "jobs-snapshot"))
}

func TestScenarioShutdownReenqueues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	started := make(chan struct{})
	h := HandlerFuncs{ProcessFunc: func(ctx context.Context, _ store.Item) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "y"}))

	done := runAsync(ctx, p)
	<-started
	cancel()
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []store.Item{{Score: 1, Member: "y"}}, rangeAll(t, s, "jobs"))
	assert.Equal(t, []store.Item{{Score: 1, Member: "y"}}, rangeAll(t, s, "jobs-snapshot"))
}

func TestShutdownReenqueuesItemFinishedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	started := make(chan struct{})
	release := make(chan struct{})
	h := HandlerFuncs{ProcessFunc: func(context.Context, store.Item) error {
		close(started)
		<-release
		return nil
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "y"}))

	done := runAsync(ctx, p)
	<-started
	cancel()
	close(release)
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []store.Item{{Score: 1, Member: "y"}}, rangeAll(t, s, "jobs"))
	assert.Equal(t, []store.Item{{Score: 1, Member: "y"}}, rangeAll(t, s, "jobs-snapshot"))
}

func TestRunContainsHandlerPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	var buf bytes.Buffer
	logger := log.NewLogger(
		log.WithFormatter(&log.TextFormatter{DisableTimestamp: true}),
		log.WithOutput(&log.ConsoleOutput{Writer: &buf}),
	)
	var processed []string
	h := HandlerFuncs{ProcessFunc: func(_ context.Context, it store.Item) error {
		if it.Member == "boom" {
			panic("kaboom")
		}
		processed = append(processed, it.Member)
		cancel()
		return nil
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond, Logger: logger})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "boom"}, store.Item{Score: 2, Member: "ok"}))

	require.NoError(t, waitRun(t, runAsync(ctx, p)))
	assert.Equal(t, []string{"ok"}, processed)
	assert.Contains(t, buf.String(), "handler failed")
	assert.Contains(t, buf.String(), "kaboom")
}

func TestRunRequeuesFailedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()

	attempts := 0
	h := HandlerFuncs{ProcessFunc: func(_ context.Context, it store.Item) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		cancel()
		return nil
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond, RequeueFailed: true})
	require.NoError(t, p.Enqueue(ctx, store.Item{Score: 1, Member: "flaky"}))

	require.NoError(t, waitRun(t, runAsync(ctx, p)))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, rangeAll(t, s, "jobs"))
	assert.Empty(t, rangeAll(t, s, "jobs-snapshot"))
}

func TestRunRecoversBeforePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	require.NoError(t, s.Add(ctx, "jobs-snapshot", store.Item{Score: 1, Member: "orphan"}))

	var processed []string
	h := HandlerFuncs{ProcessFunc: func(_ context.Context, it store.Item) error {
		processed = append(processed, it.Member)
		cancel()
		return nil
	}}
	p := newPoller(t, s, Options{Handler: h, SleepDuration: time.Millisecond})
	require.NoError(t, waitRun(t, runAsync(ctx, p)))
	assert.Equal(t, []string{"orphan"}, processed)
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Range(context.Context, string, int64, int64, bool) ([]store.Item, error) {
	return nil, f.err
}

func (f failingStore) Watch(ctx context.Context, fn func(tx store.Txn) error, keys ...string) error {
	return f.Store.Watch(ctx, func(tx store.Txn) error {
		return fn(failingTxn{Txn: tx, err: f.err})
	}, keys...)
}

type failingTxn struct {
	store.Txn
	err error
}

func (f failingTxn) Range(context.Context, string, int64, int64, bool) ([]store.Item, error) {
	return nil, f.err
}

func TestRunReturnsStoreErrors(t *testing.T) {
	down := errors.New("connection refused")
	s := failingStore{Store: memstore.New(), err: down}
	p := newPoller(t, s, Options{Handler: HandlerFuncs{}, SleepDuration: time.Millisecond})

	err := waitRun(t, runAsync(context.Background(), p))
	require.ErrorIs(t, err, down)
}

func TestRunWithoutHandler(t *testing.T) {
	p := newPoller(t, memstore.New(), Options{})
	require.ErrorIs(t, p.Run(context.Background()), ErrNoHandler)
}
