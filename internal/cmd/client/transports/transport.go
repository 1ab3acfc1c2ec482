// Package transports provides the backends the queue CLI talks through: the
// admin HTTP API of a running worker, or the store directly.
package transports

import (
	"context"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// ListRequest selects the items returned by List.
type ListRequest struct {
	Limit int
	// InFlight lists claimed but not completed items instead of queued ones.
	InFlight bool
}

// QueueTransport abstracts the transport used by the CLI (HTTP/direct).
type QueueTransport interface {
	Enqueue(ctx context.Context, items ...store.Item) error
	List(ctx context.Context, req ListRequest) ([]store.Item, error)
	Stats(ctx context.Context) (poller.Stats, error)
	Recover(ctx context.Context) (poller.RecoveryReport, error)
	// Remove reports whether the member was queued or in flight.
	Remove(ctx context.Context, member string) (bool, error)
	Close() error
}
