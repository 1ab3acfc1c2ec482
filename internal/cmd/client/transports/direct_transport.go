package transports

import (
	"context"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// DirectTransport operates on the store through a handler-less poller.
type DirectTransport struct {
	rt *runtime.Runtime
	p  *poller.Poller
}

// NewDirectTransport takes ownership of rt and closes it on Close.
func NewDirectTransport(rt *runtime.Runtime) (*DirectTransport, error) {
	p, err := rt.NewPoller(nil)
	if err != nil {
		return nil, err
	}
	return &DirectTransport{rt: rt, p: p}, nil
}

func (t *DirectTransport) Enqueue(ctx context.Context, items ...store.Item) error {
	return t.p.Enqueue(ctx, items...)
}

func (t *DirectTransport) List(ctx context.Context, req ListRequest) ([]store.Item, error) {
	if !req.InFlight {
		return t.p.List(ctx, req.Limit)
	}
	items, err := t.p.InFlight(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

func (t *DirectTransport) Stats(ctx context.Context) (poller.Stats, error) { return t.p.Stats(ctx) }

func (t *DirectTransport) Recover(ctx context.Context) (poller.RecoveryReport, error) {
	return t.p.Recover(ctx)
}

func (t *DirectTransport) Remove(ctx context.Context, member string) (bool, error) {
	return t.p.Remove(ctx, member)
}

func (t *DirectTransport) Close() error { return t.rt.Close() }
