package workerrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/prakharsharma/redis-sorted-set-based-poller/internal/config"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/handler"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/metrics"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
	httpserver "github.com/prakharsharma/redis-sorted-set-based-poller/internal/server/http"
	logpkg "github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// Handler kinds accepted by Options.Handler.
const (
	HandlerExec = "exec"
	HandlerLog  = "log"
)

// ErrUnknownHandler is returned for a handler kind other than exec or log.
var ErrUnknownHandler = errors.New("worker: unknown handler")

type Options struct {
	Config cfgpkg.Config
	// Handler selects the item processor: exec or log.
	Handler string
	// Command is the exec handler's program and leading arguments.
	Command     []string
	ExecTimeout time.Duration
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Ready is closed once the poller and admin server are started.
	Ready chan<- struct{}
}

// Run polls the configured queue until ctx is cancelled, then drains the
// in-flight item and stops the admin server.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = buildLogger(opts.Config.Log); err != nil {
			return err
		}
	}
	logpkg.RedirectStdLog(logger)

	collector := metrics.NewCollector(nil)
	rt, err := runtime.Open(sctx, runtime.Options{Config: opts.Config, Logger: logger, Metrics: collector})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close store", logpkg.Err(err))
		}
	}()

	h, err := buildHandler(rt, opts)
	if err != nil {
		return err
	}
	p, err := rt.NewPoller(h)
	if err != nil {
		return err
	}

	pc := opts.Config.Poller
	rt.Logger().Info("Starting zpoll worker",
		logpkg.Str(logpkg.QueueKey, p.Key()),
		logpkg.Str("backend", opts.Config.Store.Backend),
		logpkg.Str("handler", opts.Handler),
		logpkg.Bool("reverse", pc.Reverse),
		logpkg.Dur("sleep", pc.SleepDuration.Std()),
		logpkg.Str("merge_mode", pc.MergeMode),
		logpkg.Str("ready_expr", pc.ReadyExpr),
		logpkg.Bool("admin", opts.Config.Admin.Enabled),
	)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return p.Run(gctx) })
	if opts.Config.Admin.Enabled {
		srv := httpserver.New(rt, p, rt.Logger())
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, opts.Config.Admin.Addr); err != nil {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}
	if opts.Ready != nil {
		close(opts.Ready)
	}
	return g.Wait()
}

func buildLogger(cfg logpkg.Config) (logpkg.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	logger, err := logpkg.ApplyConfig(&cfg)
	if err != nil {
		return nil, fmt.Errorf("worker: logger: %w", err)
	}
	return logger, nil
}

func buildHandler(rt *runtime.Runtime, opts Options) (poller.Handler, error) {
	pred, err := rt.ReadyPredicate()
	if err != nil {
		return nil, err
	}
	var proc handler.Processor
	switch opts.Handler {
	case HandlerLog, "":
		proc = handler.NewLog(rt.Logger())
	case HandlerExec:
		if proc, err = handler.NewExec(handler.ExecOptions{
			Command: opts.Command,
			Timeout: opts.ExecTimeout,
			Logger:  rt.Logger(),
		}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, opts.Handler)
	}
	return handler.Compose(pred, proc), nil
}
