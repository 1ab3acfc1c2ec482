package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != BackendRedis {
		t.Fatalf("default backend = %q", cfg.Store.Backend)
	}
	if cfg.Poller.SleepDuration.Std() != time.Second {
		t.Fatalf("default sleep = %v", cfg.Poller.SleepDuration)
	}
	if cfg.Poller.MergeMode != "restore" {
		t.Fatalf("default merge mode = %q", cfg.Poller.MergeMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "zpoll.json")
	data := []byte(`{"store":{"backend":"pebble","dataDir":"/tmp/z"},"poller":{"key":"emails","sleepDuration":"250ms","reverse":true}}`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendPebble || cfg.Store.DataDir != "/tmp/z" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Poller.Key != "emails" || !cfg.Poller.Reverse {
		t.Fatalf("poller = %+v", cfg.Poller)
	}
	if cfg.Poller.SleepDuration.Std() != 250*time.Millisecond {
		t.Fatalf("sleep = %v", cfg.Poller.SleepDuration)
	}
	// untouched fields keep their defaults
	if cfg.Poller.ShutdownTimeout.Std() != 5*time.Second {
		t.Fatalf("shutdown timeout = %v", cfg.Poller.ShutdownTimeout)
	}
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "zpoll.yaml")
	data := []byte(`
store:
  backend: memory
poller:
  key: reports
  sleepDuration: 1500
  mergeMode: sum
  readyExpr: "score <= now_s"
admin:
  enabled: true
  addr: ":9000"
log:
  level: debug
  format: json
`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Poller.SleepDuration.Std() != 1500*time.Millisecond {
		t.Fatalf("numeric duration = %v", cfg.Poller.SleepDuration)
	}
	if cfg.Poller.MergeMode != "sum" || cfg.Poller.ReadyExpr != "score <= now_s" {
		t.Fatalf("poller = %+v", cfg.Poller)
	}
	if !cfg.Admin.Enabled || cfg.Admin.Addr != ":9000" {
		t.Fatalf("admin = %+v", cfg.Admin)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	file := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(file, []byte("poller:\n  sleepDuration: soon\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("ZPOLL_STORE_BACKEND", "pebble")
	t.Setenv("ZPOLL_KEY", "staging")
	t.Setenv("ZPOLL_SLEEP", "20ms")
	t.Setenv("ZPOLL_REVERSE", "true")
	t.Setenv("ZPOLL_ADMIN_CORS_ORIGINS", "http://a, http://b")
	t.Setenv("ZPOLL_SHUTDOWN_TIMEOUT", "not-a-duration")
	FromEnv(&cfg)

	if cfg.Store.Backend != BackendPebble {
		t.Fatalf("env override backend")
	}
	if cfg.Poller.Key != "staging" || !cfg.Poller.Reverse {
		t.Fatalf("env override poller: %+v", cfg.Poller)
	}
	if cfg.Poller.SleepDuration.Std() != 20*time.Millisecond {
		t.Fatalf("env override sleep")
	}
	if len(cfg.Admin.CORSOrigins) != 2 || cfg.Admin.CORSOrigins[1] != "http://b" {
		t.Fatalf("env override cors: %v", cfg.Admin.CORSOrigins)
	}
	if cfg.Poller.ShutdownTimeout.Std() != 5*time.Second {
		t.Fatalf("malformed value must be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, ErrUnknownBackend},
		{"pebble without dir", func(c *Config) { c.Store.Backend = BackendPebble; c.Store.DataDir = "" }, ErrInvalid},
		{"bad fsync", func(c *Config) { c.Store.Backend = BackendPebble; c.Store.Fsync = "sometimes" }, ErrInvalid},
		{"redis without url", func(c *Config) { c.Store.RedisURL = "" }, ErrInvalid},
		{"empty key", func(c *Config) { c.Poller.Key = "" }, ErrInvalid},
		{"bad merge mode", func(c *Config) { c.Poller.MergeMode = "max" }, ErrInvalid},
		{"negative sleep", func(c *Config) { c.Poller.SleepDuration = -1 }, ErrInvalid},
		{"admin without addr", func(c *Config) { c.Admin.Enabled = true; c.Admin.Addr = "" }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}
