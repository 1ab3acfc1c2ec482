// Package log provides zpoll's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a bridge handler that feeds a formatter/outputs
// pipeline, so every component logs with the same shape whatever the sink.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("poller"), log.Str("queue", "jobs"))
//	l.Info("claimed item", log.Str("member", "job-1"), log.Float64("score", 1))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and multiple outputs (console, file, null). Redaction and
// sampling are applied in the bridge handler.
//
// # Failure behaviour
//
// Output and formatting errors are dropped inside the handler. Call sites never
// observe a logging failure, and NewNopLogger gives components a default that
// discards everything.
//
// # Interop
//
// RedirectStdLog routes the standard library's default logger, and with it
// any dependency that logs through it, into a Logger at info level.
package log
