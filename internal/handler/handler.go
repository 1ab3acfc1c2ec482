package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

const (
	EnvMember = "ZPOLL_MEMBER"
	EnvScore  = "ZPOLL_SCORE"

	// maxOutput bounds the command output kept for logs and errors.
	maxOutput = 4 << 10
)

// ErrNoCommand is returned by NewExec for an empty command line.
var ErrNoCommand = errors.New("handler: command is required")

// Processor performs the work for one claimed item.
type Processor interface {
	Process(ctx context.Context, item store.Item) error
}

// Readiness reports whether an item may be claimed now.
type Readiness interface {
	Ready(ctx context.Context, item store.Item) (bool, error)
}

// Compose builds a poller.Handler. A nil ready treats every item as ready.
func Compose(ready Readiness, proc Processor) poller.Handler {
	h := poller.HandlerFuncs{ProcessFunc: proc.Process}
	if ready != nil {
		h.ReadyFunc = ready.Ready
	}
	return h
}

// ExecOptions configures an Exec processor.
type ExecOptions struct {
	// Command is the program and its leading arguments. The member and the
	// score are appended.
	Command []string
	// Timeout bounds a single run; zero means no limit.
	Timeout time.Duration
	// GracePeriod is how long a cancelled command has between SIGTERM and
	// SIGKILL.
	GracePeriod time.Duration
	Dir         string
	Env         []string
	Logger      log.Logger
}

// Exec runs a command per item.
type Exec struct {
	opts   ExecOptions
	logger log.Logger
}

func NewExec(opts ExecOptions) (*Exec, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, ErrNoCommand
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Exec{opts: opts, logger: logger.WithComponent("exec")}, nil
}

// Process runs the command and fails when it exits non-zero.
func (e *Exec) Process(ctx context.Context, item store.Item) error {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	score := strconv.FormatFloat(item.Score, 'g', -1, 64)
	args := append(append([]string{}, e.opts.Command[1:]...), item.Member, score)
	cmd := exec.CommandContext(ctx, e.opts.Command[0], args...)
	cmd.Dir = e.opts.Dir
	cmd.Env = append(append(os.Environ(), e.opts.Env...), EnvMember+"="+item.Member, EnvScore+"="+score)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = e.opts.GracePeriod
	out := &limitedBuffer{max: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	fields := []log.Field{
		log.Str("member", item.Member),
		log.Dur("elapsed", time.Since(start)),
	}
	if err != nil {
		e.logger.Debug("command failed", append(fields, log.Err(err), log.Str("output", out.String()))...)
		if ctx.Err() != nil {
			return fmt.Errorf("handler: %s: %w", e.opts.Command[0], ctx.Err())
		}
		return fmt.Errorf("handler: %s: %w: %s", e.opts.Command[0], err, strings.TrimSpace(out.String()))
	}
	e.logger.Debug("command finished", append(fields, log.Str("output", out.String()))...)
	return nil
}

// Log records each item and succeeds.
type Log struct {
	logger log.Logger
}

func NewLog(logger log.Logger) *Log {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Log{logger: logger.WithComponent("handler")}
}

func (l *Log) Process(_ context.Context, item store.Item) error {
	l.logger.Info("processed item", log.Str("member", item.Member), log.Float64("score", item.Score))
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
