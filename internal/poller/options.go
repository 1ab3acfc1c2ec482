package poller

import (
	"fmt"
	"time"

	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// SnapshotSuffix is appended to the queue key to name its snapshot set.
const SnapshotSuffix = "-snapshot"

// SnapshotKey returns the snapshot key for a queue key.
func SnapshotKey(key string) string { return key + SnapshotSuffix }

// MergeMode selects how Recover folds the snapshot back into the queue.
type MergeMode string

const (
	// MergeRestore adds back members missing from the queue with their
	// snapshot score. Members already queued keep their current score.
	MergeRestore MergeMode = "restore"
	// MergeSum overwrites the queue with the union of queue and snapshot,
	// summing the scores of members present in both.
	MergeSum MergeMode = "sum"
)

// ParseMergeMode validates a textual merge mode. Empty selects MergeRestore.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(s) {
	case "", MergeRestore:
		return MergeRestore, nil
	case MergeSum:
		return MergeSum, nil
	default:
		return "", fmt.Errorf("poller: unknown merge mode %q", s)
	}
}

// Options configures a Poller.
type Options struct {
	// Key names the queue. Required.
	Key string
	// Reverse claims the highest score first.
	Reverse bool
	// SleepDuration is the pause after an empty or failed iteration (default: 1s).
	SleepDuration time.Duration
	// MergeMode is the recovery merge strategy (default: MergeRestore).
	MergeMode MergeMode
	// ShutdownTimeout bounds the re-enqueue of an in-flight item when Run
	// stops (default: 5s).
	ShutdownTimeout time.Duration
	// RequeueFailed puts items whose Process call failed back into the queue
	// with their original score instead of leaving them to Recover.
	RequeueFailed bool
	// Handler supplies the eligibility check and the work function. Run
	// requires it; without one every head item is considered ready.
	Handler Handler
	// Logger receives poller logs (default: no-op).
	Logger log.Logger
	// Observer receives claim, conflict and processing events (default: no-op).
	Observer Observer
}

func (o *Options) setDefaults() {
	if o.SleepDuration <= 0 {
		o.SleepDuration = time.Second
	}
	if o.MergeMode == "" {
		o.MergeMode = MergeRestore
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
}

// Observer receives poller events. Implementations must be cheap and must not block.
type Observer interface {
	ObserveClaim(queue string, claimed bool, elapsed time.Duration)
	ObserveConflict(queue string)
	ObserveProcessed(queue string, err error, elapsed time.Duration)
	ObserveRecovery(queue string, report RecoveryReport)
	ObserveRequeue(queue string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ObserveClaim(string, bool, time.Duration)      {}
func (NopObserver) ObserveConflict(string)                        {}
func (NopObserver) ObserveProcessed(string, error, time.Duration) {}
func (NopObserver) ObserveRecovery(string, RecoveryReport)        {}
func (NopObserver) ObserveRequeue(string)                         {}
