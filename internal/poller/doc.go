// Package poller implements a crash-resilient worker over a sorted-set queue.
//
// Producers add (score, member) pairs to a queue key. Any number of workers,
// in one process or many, poll the same key; the store's optimistic
// transactions guarantee that a queued member is claimed by at most one of
// them at a time.
//
// # Keyspace
//
//	<key>           - pending items, claimed from the lowest score (or highest with Reverse)
//	<key>-snapshot  - items not yet durably completed
//
// # Claim protocol
//
//  1. Dequeue: in one watched transaction peek the head of <key>, overwrite
//     the snapshot with a copy of <key>, ask the handler whether the head is
//     ready and, if so, remove it from <key>. The claimed member stays in
//     the snapshot.
//  2. Process: the handler does the work.
//  3. Complete: the member is removed from the snapshot.
//
// A worker that dies between 1 and 3 leaves the member in the snapshot but
// not in the queue. Recover, run once when a worker starts, notices that the
// two sets disagree in size and restores the missing members.
//
// # At-least-once semantics
//
// Items may be processed more than once. Duplicates can occur when:
//   - a worker crashes after processing but before Complete
//   - Recover runs while another live worker is still processing an item
//   - a handler fails during shutdown after its side effects were applied
//
// Handlers should be idempotent.
//
// With several workers on one key, every claim rewrites the snapshot from
// the queue, so it drops members other workers still hold. A crash is then
// only recoverable if no other worker claimed since the crashed claim.
package poller
