// Package config loads zpoll configuration. It exposes a Default() baseline,
// file loading (JSON or YAML by extension), a ZPOLL_* environment overlay and
// validation.
//
// Example:
//
//	cfg, err := config.Load("/etc/zpoll.yaml") // empty path yields Default()
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
package config
