package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// runState is the mutable state of one Run call.
type runState struct {
	// inFlight is the claimed item not yet completed or handed back.
	inFlight  *store.Item
	backoff   bool
	processed uint64
	failed    uint64
}

// Run recovers the queue and then claims and processes items until ctx is
// cancelled. Handler failures and panics are logged and followed by a
// backoff sleep. Store failures stop the loop and are returned. On
// cancellation the item held at that moment is put back into the queue,
// even if its processing then succeeds, and Run returns nil.
func (p *Poller) Run(ctx context.Context) error {
	if p.handler == nil {
		return ErrNoHandler
	}
	// Store calls never observe cancellation: a claim is either fully
	// committed or not attempted.
	storeCtx := context.WithoutCancel(ctx)

	if _, err := p.Recover(storeCtx); err != nil {
		return err
	}
	p.logger.Info("poller started",
		log.Bool("reverse", p.reverse),
		log.Dur("sleep", p.sleep),
	)

	st := &runState{}
	for {
		if st.backoff && !sleepCtx(ctx, p.sleep) {
			return p.drain(ctx, st)
		}
		if ctx.Err() != nil {
			return p.drain(ctx, st)
		}
		if err := p.iterate(ctx, storeCtx, st); err != nil {
			return err
		}
	}
}

func (p *Poller) iterate(ctx, storeCtx context.Context, st *runState) error {
	item, claimed, err := p.Dequeue(storeCtx)
	var cbErr *CallbackError
	switch {
	case errors.As(err, &cbErr):
		p.logCallbackError(cbErr)
		st.backoff = true
		return nil
	case err != nil:
		return fmt.Errorf("poller: dequeue %s: %w", p.key, err)
	case !claimed:
		st.backoff = true
		return nil
	}

	st.inFlight = &item
	start := time.Now()
	perr := p.process(ctx, item)
	p.observer.ObserveProcessed(p.key, perr, time.Since(start))
	if ctx.Err() != nil {
		// Shutdown arrived while the item was held: drain hands it back to
		// the queue and it stays in the snapshot, whatever Process returned.
		if perr != nil {
			st.failed++
			if errors.As(perr, &cbErr) {
				p.logCallbackError(cbErr)
			}
		}
		return nil
	}

	if perr != nil {
		st.failed++
		st.backoff = true
		if errors.As(perr, &cbErr) {
			p.logCallbackError(cbErr)
		}
		st.inFlight = nil
		if p.requeue {
			if err := p.Enqueue(storeCtx, item); err != nil {
				return err
			}
			p.observer.ObserveRequeue(p.key)
		}
		return nil
	}

	if err := p.Complete(storeCtx, item.Member); err != nil {
		return err
	}
	st.inFlight = nil
	st.backoff = false
	st.processed++
	return nil
}

// drain re-enqueues the in-flight item, if any, and ends the run.
func (p *Poller) drain(ctx context.Context, st *runState) error {
	defer p.logger.Info("poller stopped",
		log.F("processed", st.processed),
		log.F("failed", st.failed),
	)
	if st.inFlight == nil {
		return nil
	}
	item := *st.inFlight
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTTL)
	defer cancel()
	if err := p.Enqueue(rctx, item); err != nil {
		return fmt.Errorf("poller: re-enqueue %q on shutdown: %w", item.Member, err)
	}
	st.inFlight = nil
	p.observer.ObserveRequeue(p.key)
	p.logger.Info("re-enqueued in-flight item", log.Str("member", item.Member), log.Float64("score", item.Score))
	return nil
}

func (p *Poller) logCallbackError(e *CallbackError) {
	fields := []log.Field{
		log.Str("stage", string(e.Stage)),
		log.Str("member", e.Item.Member),
		log.Float64("score", e.Item.Score),
		log.Err(e.Err),
	}
	if e.Panicked {
		fields = append(fields, log.Str("stack", string(e.Stack)))
	}
	p.logger.Error("handler failed", fields...)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
