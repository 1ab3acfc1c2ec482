package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/cmd/client/transports"
	cfgpkg "github.com/prakharsharma/redis-sorted-set-based-poller/internal/config"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
)

// TransportFunc opens the transport a command talks through.
type TransportFunc func(cmd *cobra.Command) (transports.QueueTransport, error)

// apiURLFromEnv returns the admin API base URL from ZPOLL_API, if any.
func apiURLFromEnv() string { return os.Getenv("ZPOLL_API") }

// addConnFlags registers the flags read by DefaultTransport.
func addConnFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("api", apiURLFromEnv(), "Worker admin API base URL; empty talks to the store directly")
	f.String("config", "", "Config file (JSON or YAML)")
	f.String("backend", "", "Store backend: redis|pebble|memory")
	f.String("redis-url", "", "Redis URL")
	f.String("data-dir", "", "Pebble data directory")
	f.String("key", "", "Queue key")
}

// LoadConfig resolves defaults, --config, ZPOLL_* variables and flags.
func LoadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	cfg := cfgpkg.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = cfgpkg.Load(path); err != nil {
			return cfgpkg.Config{}, err
		}
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Store.Backend = v
	}
	if v, _ := cmd.Flags().GetString("redis-url"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Store.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("key"); v != "" {
		cfg.Poller.Key = v
	}
	return cfg, cfg.Validate()
}

// DefaultTransport uses the admin API when --api is set and the store
// otherwise.
func DefaultTransport(cmd *cobra.Command) (transports.QueueTransport, error) {
	if api, _ := cmd.Flags().GetString("api"); api != "" {
		return transports.NewHTTPTransport(api, nil), nil
	}
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	rt, err := runtime.Open(cmd.Context(), runtime.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	t, err := transports.NewDirectTransport(rt)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return t, nil
}

// withTransport opens a transport, runs fn and closes it.
func withTransport(cmd *cobra.Command, open TransportFunc, fn func(ctx context.Context, t transports.QueueTransport) error) error {
	t, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, t)
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
