package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tickloop/internal/ir"
)

// SaveSnapshot stores snap under a fresh ID and returns the ID. Timers and
// watches keep their table order. The whole snapshot is written in one
// transaction, so a failed save leaves no partial rows.
//
// SaveSnapshot implements the scheduler's persister.
func (s *Store) SaveSnapshot(ctx context.Context, snap ir.Snapshot) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots`).Scan(&seq); err != nil {
		return "", fmt.Errorf("save snapshot: next seq: %w", err)
	}

	id := s.newID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, seq, tick, snapshot_version, engine_version)
		VALUES (?, ?, ?, ?, ?)
	`, id, seq, snap.Tick, ir.SnapshotVersion, ir.EngineVersion)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	if err := writeWatches(ctx, tx, id, snap.Watches); err != nil {
		return "", err
	}
	if err := writeTimers(ctx, tx, id, snap.Timers); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save snapshot: commit: %w", err)
	}
	return id, nil
}

func writeWatches(ctx context.Context, tx *sql.Tx, id string, watches []ir.WatchRecord) error {
	for i, w := range watches {
		cb, err := marshalTarget(w.Callback)
		if err != nil {
			return fmt.Errorf("save watch %d: %w", w.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_watches
			(snapshot_id, ord, watch_id, pin, edge, recurring, debounce, callback, last_fire, fired, last_level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id, i, w.ID, w.Pin, string(w.Edge), boolInt(w.Recurring), w.Debounce,
			cb, w.LastFire, boolInt(w.Fired), boolInt(w.LastLevel),
		)
		if err != nil {
			return fmt.Errorf("save watch %d: %w", w.ID, err)
		}
	}
	return nil
}

func writeTimers(ctx context.Context, tx *sql.Tx, id string, timers []ir.TimerRecord) error {
	for i, t := range timers {
		cb, err := marshalTarget(t.Callback)
		if err != nil {
			return fmt.Errorf("save timer %d: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_timers
			(snapshot_id, ord, timer_id, remaining, interval, recurring, callback, watch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id, i, t.ID, t.Remaining, t.Interval, boolInt(t.Recurring), cb, t.Watch,
		)
		if err != nil {
			return fmt.Errorf("save timer %d: %w", t.ID, err)
		}
	}
	return nil
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed. Rows of pruned snapshots cascade.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY seq DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}
