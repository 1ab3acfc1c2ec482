// Package client provides the `zpoll queue` command group.
//
// The commands operate on one queue either through the admin HTTP API of a
// running worker (--api or ZPOLL_API) or directly on the configured store.
//
// Usage
//
//	# enqueue directly into Redis, due in 30 seconds, with a generated member
//	zpoll queue enqueue --redis-url redis://localhost:6379/0 --key jobs --delay 30s
//
//	# enqueue with an explicit score and member
//	zpoll queue enqueue --key jobs --score 1700000000 --member invoice-42
//
//	zpoll queue list --key jobs --limit 10
//	zpoll queue list --key jobs --inflight
//	zpoll queue stats --api http://127.0.0.1:9464
//	zpoll queue recover --key jobs
//	zpoll queue remove --key jobs invoice-42
//
// Notes
//
//   - Direct mode builds its configuration like the worker: defaults, then
//     --config, then ZPOLL_* variables, then flags.
//   - The memory backend is per process and is only useful in tests.
package client
