package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

var (
	ErrUnknownBackend = errors.New("config: unknown store backend")
	ErrInvalid        = errors.New("config: invalid")
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Store  StoreConfig  `json:"store" yaml:"store"`
	Poller PollerConfig `json:"poller" yaml:"poller"`
	Admin  AdminConfig  `json:"admin" yaml:"admin"`
	Log    log.Config   `json:"log" yaml:"log"`
}

// StoreConfig selects and configures the ordered store.
type StoreConfig struct {
	// Backend is one of memory, pebble or redis.
	Backend  string `json:"backend" yaml:"backend"`
	RedisURL string `json:"redisURL" yaml:"redisURL"`
	DataDir  string `json:"dataDir" yaml:"dataDir"`
	// Fsync is always, interval or never (pebble only).
	Fsync         string   `json:"fsync" yaml:"fsync"`
	FsyncInterval Duration `json:"fsyncInterval" yaml:"fsyncInterval"`
}

// PollerConfig mirrors poller.Options.
type PollerConfig struct {
	Key             string   `json:"key" yaml:"key"`
	Reverse         bool     `json:"reverse" yaml:"reverse"`
	SleepDuration   Duration `json:"sleepDuration" yaml:"sleepDuration"`
	MergeMode       string   `json:"mergeMode" yaml:"mergeMode"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	RequeueFailed   bool     `json:"requeueFailed" yaml:"requeueFailed"`
	// ReadyExpr is a CEL expression deciding whether the head item is ready.
	ReadyExpr string `json:"readyExpr" yaml:"readyExpr"`
}

// AdminConfig configures the worker's HTTP admin endpoint.
type AdminConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Addr        string   `json:"addr" yaml:"addr"`
	CORSOrigins []string `json:"corsOrigins" yaml:"corsOrigins"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:       BackendRedis,
			RedisURL:      "redis://localhost:6379/0",
			DataDir:       DefaultDataDir(),
			Fsync:         "interval",
			FsyncInterval: Duration(5 * time.Millisecond),
		},
		Poller: PollerConfig{
			Key:             "zpoll",
			SleepDuration:   Duration(time.Second),
			MergeMode:       "restore",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:9464",
		},
		Log: log.Config{
			Level:   "info",
			Format:  "text",
			Outputs: []string{"console"},
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPebble:
		if c.Store.DataDir == "" {
			return fmt.Errorf("%w: store.dataDir is required for the pebble backend", ErrInvalid)
		}
		switch c.Store.Fsync {
		case "", "always", "interval", "never":
		default:
			return fmt.Errorf("%w: store.fsync %q", ErrInvalid, c.Store.Fsync)
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: store.redisURL is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if c.Poller.Key == "" {
		return fmt.Errorf("%w: poller.key is required", ErrInvalid)
	}
	switch c.Poller.MergeMode {
	case "", "restore", "sum":
	default:
		return fmt.Errorf("%w: poller.mergeMode %q", ErrInvalid, c.Poller.MergeMode)
	}
	if c.Poller.SleepDuration < 0 || c.Poller.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("%w: admin.addr is required when admin is enabled", ErrInvalid)
	}
	return nil
}

// Duration is a time.Duration that reads and writes as "1.5s" in JSON and
// YAML. Plain numbers are taken as milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(x * float64(time.Millisecond)))
	case int:
		*d = Duration(time.Duration(x) * time.Millisecond)
	default:
		return fmt.Errorf("config: invalid duration %v", v)
	}
	return nil
}
