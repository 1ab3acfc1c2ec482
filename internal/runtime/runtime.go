package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	cfgpkg "github.com/prakharsharma/redis-sorted-set-based-poller/internal/config"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/metrics"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/predicate"
	pebbledb "github.com/prakharsharma/redis-sorted-set-based-poller/internal/storage/pebble"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store/memstore"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store/pebblestore"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store/redisstore"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to a no-op logger.
	Logger log.Logger
	// Metrics is optional; when set it observes pollers and Pebble.
	Metrics *metrics.Collector
	// Store overrides the configured backend.
	Store store.Store
}

// Runtime wires storage, config and observability for one worker.
type Runtime struct {
	store    store.Store
	config   cfgpkg.Config
	workerID string
	logger   log.Logger
	metrics  *metrics.Collector
}

// Open validates the configuration and connects to the configured store.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	workerID := uuid.NewString()
	logger = logger.With(log.Str(log.WorkerIDKey, workerID))

	s := opts.Store
	if s == nil {
		var err error
		if s, err = openStore(ctx, cfg, logger, opts.Metrics); err != nil {
			return nil, err
		}
	}
	logger.Debug("store opened", log.Str("backend", cfg.Store.Backend))
	return &Runtime{
		store:    s,
		config:   cfg,
		workerID: workerID,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

func openStore(ctx context.Context, cfg cfgpkg.Config, logger log.Logger, m *metrics.Collector) (store.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case cfgpkg.BackendMemory:
		return memstore.New(), nil
	case cfgpkg.BackendPebble:
		fsync, err := pebbledb.ParseFsyncMode(sc.Fsync)
		if err != nil {
			return nil, err
		}
		opts := pebbledb.Options{
			DataDir:       cfgpkg.PebbleDir(sc.DataDir, cfg.Poller.Key),
			Fsync:         fsync,
			FsyncInterval: sc.FsyncInterval.Std(),
			Logger:        logger,
		}
		if m != nil {
			opts.Metrics = m
		}
		s, err := pebblestore.Open(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfgpkg.BackendRedis:
		s, err := redisstore.Open(ctx, sc.RedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", cfgpkg.ErrUnknownBackend, sc.Backend)
	}
}

// Close closes the store.
func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// CheckHealth pings the store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	return r.store.Ping(ctx)
}

// NewPoller returns a poller for the configured queue. h may be nil for
// pollers used only to enqueue, inspect or recover.
func (r *Runtime) NewPoller(h poller.Handler) (*poller.Poller, error) {
	pc := r.config.Poller
	mode, err := poller.ParseMergeMode(pc.MergeMode)
	if err != nil {
		return nil, err
	}
	opts := poller.Options{
		Key:             pc.Key,
		Reverse:         pc.Reverse,
		SleepDuration:   pc.SleepDuration.Std(),
		MergeMode:       mode,
		ShutdownTimeout: pc.ShutdownTimeout.Std(),
		RequeueFailed:   pc.RequeueFailed,
		Handler:         h,
		Logger:          r.logger,
	}
	if r.metrics != nil {
		opts.Observer = r.metrics
	}
	return poller.New(r.store, opts)
}

// ReadyPredicate compiles the configured readiness expression.
func (r *Runtime) ReadyPredicate() (*predicate.Predicate, error) {
	return predicate.Compile(r.config.Poller.ReadyExpr)
}

// Store exposes the underlying store.
func (r *Runtime) Store() store.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// WorkerID identifies this process in logs.
func (r *Runtime) WorkerID() string { return r.workerID }

// Logger returns the runtime logger, tagged with the worker id.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Metrics returns the collector, or nil.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }
