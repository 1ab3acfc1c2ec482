package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays ZPOLL_* environment variables onto cfg. Malformed values
// are ignored.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	duration := func(name string, dst *Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}

	str("ZPOLL_STORE_BACKEND", &cfg.Store.Backend)
	str("ZPOLL_REDIS_URL", &cfg.Store.RedisURL)
	str("ZPOLL_DATA_DIR", &cfg.Store.DataDir)
	str("ZPOLL_FSYNC", &cfg.Store.Fsync)
	duration("ZPOLL_FSYNC_INTERVAL", &cfg.Store.FsyncInterval)

	str("ZPOLL_KEY", &cfg.Poller.Key)
	boolean("ZPOLL_REVERSE", &cfg.Poller.Reverse)
	duration("ZPOLL_SLEEP", &cfg.Poller.SleepDuration)
	str("ZPOLL_MERGE_MODE", &cfg.Poller.MergeMode)
	duration("ZPOLL_SHUTDOWN_TIMEOUT", &cfg.Poller.ShutdownTimeout)
	boolean("ZPOLL_REQUEUE_FAILED", &cfg.Poller.RequeueFailed)
	str("ZPOLL_READY_EXPR", &cfg.Poller.ReadyExpr)

	boolean("ZPOLL_ADMIN_ENABLED", &cfg.Admin.Enabled)
	str("ZPOLL_ADMIN_ADDR", &cfg.Admin.Addr)
	if v := os.Getenv("ZPOLL_ADMIN_CORS_ORIGINS"); v != "" {
		cfg.Admin.CORSOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Admin.CORSOrigins = append(cfg.Admin.CORSOrigins, p)
			}
		}
	}

	str("ZPOLL_LOG_LEVEL", &cfg.Log.Level)
	str("ZPOLL_LOG_FORMAT", &cfg.Log.Format)
}
