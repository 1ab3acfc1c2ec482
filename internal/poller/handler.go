package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

var (
	// ErrNoHandler is returned by Run when Options.Handler is nil.
	ErrNoHandler = errors.New("poller: no handler configured")
	// ErrEmptyKey is returned by New when Options.Key is empty.
	ErrEmptyKey = errors.New("poller: queue key is required")
	// ErrEmptyMember rejects items without a member.
	ErrEmptyMember = errors.New("poller: member is required")
)

// Handler supplies the two callbacks a poller needs.
type Handler interface {
	// Ready reports whether item may be claimed now. It can be called
	// several times for the same item and must not have side effects.
	Ready(ctx context.Context, item store.Item) (bool, error)
	// Process performs the work for a claimed item. ctx is cancelled when
	// the poller is asked to stop; Process may return early in that case.
	Process(ctx context.Context, item store.Item) error
}

// HandlerFuncs adapts plain functions to Handler. A nil ReadyFunc treats
// every item as ready.
type HandlerFuncs struct {
	ReadyFunc   func(ctx context.Context, item store.Item) (bool, error)
	ProcessFunc func(ctx context.Context, item store.Item) error
}

func (h HandlerFuncs) Ready(ctx context.Context, item store.Item) (bool, error) {
	if h.ReadyFunc == nil {
		return true, nil
	}
	return h.ReadyFunc(ctx, item)
}

func (h HandlerFuncs) Process(ctx context.Context, item store.Item) error {
	if h.ProcessFunc == nil {
		return nil
	}
	return h.ProcessFunc(ctx, item)
}

// Stage names the callback that failed.
type Stage string

const (
	StageReady   Stage = "ready"
	StageProcess Stage = "process"
)

// CallbackError wraps a failure or panic raised by a Handler.
type CallbackError struct {
	Stage    Stage
	Item     store.Item
	Err      error
	Panicked bool
	Stack    []byte
}

func (e *CallbackError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("poller: %s callback panicked for %q: %v", e.Stage, e.Item.Member, e.Err)
	}
	return fmt.Sprintf("poller: %s callback failed for %q: %v", e.Stage, e.Item.Member, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

func (p *Poller) ready(ctx context.Context, item store.Item) (ok bool, err error) {
	if p.handler == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &CallbackError{Stage: StageReady, Item: item, Err: fmt.Errorf("%v", r), Panicked: true, Stack: debug.Stack()}
		}
	}()
	ok, err = p.handler.Ready(ctx, item)
	if err != nil {
		return false, &CallbackError{Stage: StageReady, Item: item, Err: err}
	}
	return ok, nil
}

func (p *Poller) process(ctx context.Context, item store.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Stage: StageProcess, Item: item, Err: fmt.Errorf("%v", r), Panicked: true, Stack: debug.Stack()}
		}
	}()
	if err := p.handler.Process(ctx, item); err != nil {
		return &CallbackError{Stage: StageProcess, Item: item, Err: err}
	}
	return nil
}
