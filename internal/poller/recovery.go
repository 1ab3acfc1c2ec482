package poller

import (
	"context"
	"fmt"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// RecoveryReport describes what Recover found and did.
type RecoveryReport struct {
	Mode          MergeMode `json:"mode"`
	SnapshotFound bool      `json:"snapshot_found"`
	QueueCard     int64     `json:"queue_card"`
	SnapshotCard  int64     `json:"snapshot_card"`
	Merged        bool      `json:"merged"`
	// Restored counts snapshot members that were missing from the queue.
	Restored int64 `json:"restored"`
}

// Recover reconciles the queue with its snapshot. When the snapshot exists
// and the two sets differ in size, a previous worker is assumed to have died
// holding a claim, and the snapshot is merged back into the queue according
// to the configured MergeMode. Running it twice in a row is a no-op the
// second time.
func (p *Poller) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	err := p.atomically(ctx, "recover", func(tx store.Txn) error {
		rep = RecoveryReport{Mode: p.mergeMode}

		exists, err := tx.Exists(ctx, p.snapshotKey)
		if err != nil || !exists {
			return err
		}
		rep.SnapshotFound = true

		if rep.QueueCard, err = tx.Card(ctx, p.key); err != nil {
			return err
		}
		if rep.SnapshotCard, err = tx.Card(ctx, p.snapshotKey); err != nil {
			return err
		}
		if rep.QueueCard == rep.SnapshotCard {
			return nil
		}

		queued, err := tx.Range(ctx, p.key, 0, -1, false)
		if err != nil {
			return err
		}
		snap, err := tx.Range(ctx, p.snapshotKey, 0, -1, false)
		if err != nil {
			return err
		}
		inQueue := make(map[string]struct{}, len(queued))
		for _, it := range queued {
			inQueue[it.Member] = struct{}{}
		}
		missing := make([]store.Item, 0, len(snap))
		for _, it := range snap {
			if _, ok := inQueue[it.Member]; !ok {
				missing = append(missing, it)
			}
		}

		rep.Merged = true
		rep.Restored = int64(len(missing))
		switch p.mergeMode {
		case MergeSum:
			tx.UnionStore(p.key, p.key, p.snapshotKey)
		default:
			tx.AddNX(p.key, missing...)
		}
		return nil
	})
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("poller: recover: %w", err)
	}

	p.observer.ObserveRecovery(p.key, rep)
	if rep.Merged {
		p.logger.Warn("recovered unfinished items from snapshot",
			log.Int64("restored", rep.Restored),
			log.Int64("queue_card", rep.QueueCard),
			log.Int64("snapshot_card", rep.SnapshotCard),
			log.Str("mode", string(rep.Mode)),
		)
	} else {
		p.logger.Debug("queue and snapshot reconciled", log.Bool("snapshot_found", rep.SnapshotFound))
	}
	return rep, nil
}
