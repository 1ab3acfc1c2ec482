// Package workerrun exposes the Run entrypoint used by `zpoll worker run`: it
// opens the configured store, polls the queue with the selected handler and
// serves the admin API until the context is cancelled.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Store.Backend = config.BackendMemory
//	opts := workerrun.Options{Config: cfg, Handler: workerrun.HandlerLog}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = workerrun.Run(ctx, opts)
package workerrun
