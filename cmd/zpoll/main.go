package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/prakharsharma/redis-sorted-set-based-poller/internal/cmd/client"
	workerrun "github.com/prakharsharma/redis-sorted-set-based-poller/internal/cmd/worker"
	cfgpkg "github.com/prakharsharma/redis-sorted-set-based-poller/internal/config"
	logpkg "github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Respect ZPOLL_LOG_LEVEL for CLI output
	level := os.Getenv("ZPOLL_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:           "zpoll",
		Short:         "Sorted-set queue poller",
		Long:          "zpoll claims items from a sorted-set queue in score order and survives worker crashes by keeping a snapshot of claimed items.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	workerCmd := &cobra.Command{Use: "worker", Short: "Worker commands"}
	workerCmd.AddCommand(newWorkerRunCommand())
	rootCmd.AddCommand(workerCmd)

	rootCmd.AddCommand(clientcmd.NewQueueCommand(nil))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the zpoll version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion())
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		cancel()
		os.Exit(1)
	}
}

func newWorkerRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [-- command args...]",
		Short:   "Poll the queue and process items",
		Aliases: []string{"start"},
		Long: `Poll the queue and process each ready item.

With --handler exec the arguments after "--" form the command run per item;
the member and score are appended and exported as ZPOLL_MEMBER and
ZPOLL_SCORE. With --handler log items are only logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientcmd.LoadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("fsync") {
				cfg.Store.Fsync, _ = f.GetString("fsync")
			}
			if f.Changed("reverse") {
				cfg.Poller.Reverse, _ = f.GetBool("reverse")
			}
			if f.Changed("sleep") {
				d, _ := f.GetDuration("sleep")
				cfg.Poller.SleepDuration = cfgpkg.Duration(d)
			}
			if f.Changed("merge-mode") {
				cfg.Poller.MergeMode, _ = f.GetString("merge-mode")
			}
			if f.Changed("shutdown-timeout") {
				d, _ := f.GetDuration("shutdown-timeout")
				cfg.Poller.ShutdownTimeout = cfgpkg.Duration(d)
			}
			if f.Changed("requeue-failed") {
				cfg.Poller.RequeueFailed, _ = f.GetBool("requeue-failed")
			}
			if f.Changed("ready") {
				cfg.Poller.ReadyExpr, _ = f.GetString("ready")
			}
			if f.Changed("admin") {
				cfg.Admin.Enabled, _ = f.GetBool("admin")
			}
			if f.Changed("admin-addr") {
				cfg.Admin.Addr, _ = f.GetString("admin-addr")
			}
			if f.Changed("log-level") {
				cfg.Log.Level, _ = f.GetString("log-level")
			}
			if f.Changed("log-format") {
				cfg.Log.Format, _ = f.GetString("log-format")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			handler, _ := f.GetString("handler")
			execTimeout, _ := f.GetDuration("exec-timeout")

			if err := workerrun.Run(cmd.Context(), workerrun.Options{
				Config:      cfg,
				Handler:     handler,
				Command:     args,
				ExecTimeout: execTimeout,
			}); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("config", os.Getenv("ZPOLL_CONFIG"), "Config file (JSON or YAML)")
	f.String("backend", "", "Store backend: redis|pebble|memory")
	f.String("redis-url", "", "Redis URL")
	f.String("data-dir", "", "Pebble data directory (if not specified, uses OS-specific application data directory)")
	f.String("fsync", "", "Pebble fsync mode: always|interval|never")
	f.String("key", "", "Queue key")
	f.Bool("reverse", false, "Claim the highest score first")
	f.Duration("sleep", time.Second, "Pause when no item is ready")
	f.String("merge-mode", "", "Recovery merge mode: restore|sum")
	f.Duration("shutdown-timeout", 5*time.Second, "Bound on re-enqueueing the in-flight item at shutdown")
	f.Bool("requeue-failed", false, "Put items whose processing failed back on the queue")
	f.String("ready", "", `CEL readiness expression over member, score, now_ms and now_s (e.g. "score <= now_s")`)
	f.String("handler", workerrun.HandlerLog, "Item handler: exec|log")
	f.Duration("exec-timeout", 0, "Per-item timeout for the exec handler (0 for none)")
	f.Bool("admin", false, "Serve the admin HTTP API")
	f.String("admin-addr", "", "Admin HTTP listen address")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	return cmd
}

func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}
