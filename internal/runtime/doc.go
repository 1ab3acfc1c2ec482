// Package runtime wires configuration, the selected store backend, metrics
// and logging into a single worker instance. It exposes Open/Close, a health
// check and a factory for pollers bound to the configured queue.
//
// Example:
//
//	cfg := config.Default()
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	p, _ := rt.NewPoller(handler)
//	_ = p.Run(ctx)
package runtime
