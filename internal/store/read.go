package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tickloop/internal/ir"
)

// ErrNoSnapshot is returned when nothing has been saved yet, or the
// requested snapshot does not exist.
var ErrNoSnapshot = errors.New("no saved snapshot")

// SnapshotInfo summarises one stored snapshot.
type SnapshotInfo struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	Tick          int64  `json:"tick"`
	Timers        int    `json:"timers"`
	Watches       int    `json:"watches"`
	EngineVersion string `json:"engine_version"`
}

// LoadSnapshot returns the most recently saved snapshot.
//
// LoadSnapshot implements the scheduler's persister.
func (s *Store) LoadSnapshot(ctx context.Context) (*ir.Snapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM snapshots ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s.ReadSnapshot(ctx, id)
}

// ReadSnapshot returns the snapshot with the given ID.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (*ir.Snapshot, error) {
	snap := &ir.Snapshot{ID: id}
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT tick, snapshot_version FROM snapshots WHERE id = ?
	`, id).Scan(&snap.Tick, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read snapshot %s: %w", id, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	if version > ir.SnapshotVersion {
		return nil, fmt.Errorf("read snapshot %s: version %d is newer than supported %d", id, version, ir.SnapshotVersion)
	}

	if snap.Watches, err = s.readWatches(ctx, id); err != nil {
		return nil, err
	}
	if snap.Timers, err = s.readTimers(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) readWatches(ctx context.Context, id string) ([]ir.WatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT watch_id, pin, edge, recurring, debounce, callback, last_fire, fired, last_level
		FROM snapshot_watches
		WHERE snapshot_id = ?
		ORDER BY ord ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query watches: %w", err)
	}
	defer rows.Close()

	watches := []ir.WatchRecord{}
	for rows.Next() {
		var (
			w    ir.WatchRecord
			edge string
			cb   string
		)
		if err := rows.Scan(&w.ID, &w.Pin, &edge, &w.Recurring, &w.Debounce, &cb, &w.LastFire, &w.Fired, &w.LastLevel); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		w.Edge = ir.Edge(edge)
		if w.Callback, err = unmarshalTarget(cb); err != nil {
			return nil, fmt.Errorf("watch %d: %w", w.ID, err)
		}
		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watches: %w", err)
	}
	return watches, nil
}

func (s *Store) readTimers(ctx context.Context, id string) ([]ir.TimerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timer_id, remaining, interval, recurring, callback, watch_id
		FROM snapshot_timers
		WHERE snapshot_id = ?
		ORDER BY ord ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	timers := []ir.TimerRecord{}
	for rows.Next() {
		var (
			t  ir.TimerRecord
			cb string
		)
		if err := rows.Scan(&t.ID, &t.Remaining, &t.Interval, &t.Recurring, &cb, &t.Watch); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		if t.Callback, err = unmarshalTarget(cb); err != nil {
			return nil, fmt.Errorf("timer %d: %w", t.ID, err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

// ListSnapshots returns every stored snapshot, oldest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.seq, s.tick, s.engine_version,
			(SELECT COUNT(*) FROM snapshot_timers t WHERE t.snapshot_id = s.id),
			(SELECT COUNT(*) FROM snapshot_watches w WHERE w.snapshot_id = s.id)
		FROM snapshots s
		ORDER BY s.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	infos := []SnapshotInfo{}
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Seq, &info.Tick, &info.EngineVersion, &info.Timers, &info.Watches); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}
