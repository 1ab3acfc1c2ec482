// Package httpserver exposes the admin API of a zpoll worker: health, queue
// stats and listings, manual enqueue/remove, recovery and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	p, _ := rt.NewPoller(handler)
//	s := httpserver.New(rt, p, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, "127.0.0.1:9464")
package httpserver
