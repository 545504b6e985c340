package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tickloop/internal/ir"
)

// Save, load and reset
//
// Maintenance requests are flags consumed by IdleStep, at most one per
// step, in priority order reset > save > load. Each one runs inside a
// SoftKill/SoftInit pair so pin interrupts are disarmed and re-armed in
// one place:
//
//	reset: SoftKill -> Hardware.Reset -> SoftInit(nil)
//	save:  Snapshot -> SoftKill -> Persister.SaveSnapshot -> SoftInit(snapshot)
//	load:  SoftKill -> Persister.LoadSnapshot -> SoftInit(loaded)
//
// Snapshot remaining counts are relative to the instant the snapshot was
// taken, and SoftInit restarts the step clock, so time spent stored does
// not count against timers.

// Snapshot captures both tables in insertion order.
func (s *Scheduler) Snapshot() ir.Snapshot {
	since := s.sinceLastStep()
	snap := ir.Snapshot{
		Tick:    s.hw.Now(),
		Timers:  make([]ir.TimerRecord, 0, s.timers.len()),
		Watches: make([]ir.WatchRecord, 0, s.watches.len()),
	}
	for _, w := range s.Watches() {
		snap.Watches = append(snap.Watches, ir.WatchRecord{
			ID:        w.Handle.ID(),
			Pin:       w.Pin,
			Edge:      w.Edge,
			Recurring: w.Recurring,
			Debounce:  w.Debounce,
			Callback:  w.Callback,
			LastFire:  w.LastFire,
			Fired:     w.Fired,
			LastLevel: w.LastLevel,
		})
	}
	for _, t := range s.Timers() {
		snap.Timers = append(snap.Timers, ir.TimerRecord{
			ID:        t.Handle.ID(),
			Remaining: t.Remaining - since,
			Interval:  t.Interval,
			Recurring: t.Recurring,
			Callback:  t.Callback,
			Watch:     t.Watch.ID(),
		})
	}
	return snap
}

// restore inserts snapshot records into the (empty) tables. Watch IDs are
// remapped to fresh handles and debounce links follow them.
func (s *Scheduler) restore(snap ir.Snapshot) error {
	ids := make(map[int64]Handle, len(snap.Watches))
	for _, rec := range snap.Watches {
		if rec.Callback == nil || !validEdge(rec.Edge) {
			return fmt.Errorf("restore watch %d: invalid record", rec.ID)
		}
		h := s.watches.insert(watch{
			pin:       rec.Pin,
			edge:      rec.Edge,
			recurring: rec.Recurring,
			debounce:  max(rec.Debounce, 0),
			callback:  rec.Callback,
			lastFire:  rec.LastFire,
			fired:     rec.Fired,
			lastLevel: rec.LastLevel,
		})
		ids[rec.ID] = h
		s.retainPin(rec.Pin)
	}
	for _, rec := range snap.Timers {
		if rec.Callback == nil {
			return fmt.Errorf("restore timer %d: missing callback", rec.ID)
		}
		t := timer{
			remaining: rec.Remaining,
			interval:  rec.Interval,
			recurring: rec.Recurring,
			callback:  rec.Callback,
		}
		var wh Handle
		if rec.Watch != 0 {
			h, ok := ids[rec.Watch]
			if !ok {
				s.logger.Warn("dropping debounce timer for missing watch", "timer", rec.ID, "watch", rec.Watch)
				continue
			}
			t.watch, wh = h, h
		}
		th := s.timers.insert(t)
		if w, ok := s.watches.get(wh); ok {
			w.pending = th
		}
	}
	s.logger.Debug("tables restored", "timers", s.timers.len(), "watches", s.watches.len())
	return nil
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	req := s.maintenance
	if req == 0 {
		return
	}
	s.setBusy(busyMaintenance, true)
	defer s.setBusy(busyMaintenance, false)

	switch {
	case req&requestReset != 0:
		s.maintenance &^= requestReset
		s.logger.Info("resetting scheduler")
		s.SoftKill()
		s.hw.Reset()
		_ = s.SoftInit(nil)

	case req&requestSave != 0:
		s.maintenance &^= requestSave
		if s.persister == nil {
			s.report("No storage configured, cannot save")
			return
		}
		snap := s.Snapshot()
		s.SoftKill()
		id, err := s.persister.SaveSnapshot(ctx, snap)
		if err != nil {
			s.report(fmt.Sprintf("Save failed: %v", err))
		} else {
			s.logger.Info("state saved", "snapshot", id, "timers", len(snap.Timers), "watches", len(snap.Watches))
		}
		if err := s.SoftInit(&snap); err != nil {
			s.report(fmt.Sprintf("Restore after save failed: %v", err))
		}

	case req&requestLoad != 0:
		s.maintenance &^= requestLoad
		if s.persister == nil {
			s.report("No storage configured, cannot load")
			return
		}
		s.SoftKill()
		snap, err := s.persister.LoadSnapshot(ctx)
		if err != nil {
			s.report(fmt.Sprintf("Load failed: %v", err))
			_ = s.SoftInit(nil)
			return
		}
		if err := s.SoftInit(snap); err != nil {
			s.report(fmt.Sprintf("Load failed: %v", err))
			s.SoftKill()
			_ = s.SoftInit(nil)
			return
		}
		s.logger.Info("state loaded", "timers", s.timers.len(), "watches", s.watches.len())
	}
}
