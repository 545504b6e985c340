package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tickloop/internal/ir"
	"github.com/roach88/tickloop/internal/testutil"
)

// createTestStore opens a fresh database with sequential snapshot IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDs("snap").Generate))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot builds a snapshot with a plain timer, an interval,
// a debounced watch and its pending debounce timer.
func createTestSnapshot() ir.Snapshot {
	return ir.Snapshot{
		Tick: 1234,
		Watches: []ir.WatchRecord{
			{ID: 1, Pin: 5, Edge: ir.EdgeFalling, Recurring: true, Debounce: 50, Callback: ir.Function("onButton", nil), LastFire: 1000, Fired: true, LastLevel: false},
			{ID: 2, Pin: 6, Edge: ir.EdgeBoth, Callback: ir.Source("digitalWrite(LED, e.state)")},
		},
		Timers: []ir.TimerRecord{
			{ID: 1, Remaining: 40, Callback: ir.Function("blink", nil)},
			{ID: 2, Remaining: 70, Interval: 100, Recurring: true, Callback: ir.List(ir.Function("a", nil), ir.Source("b()"))},
			{ID: 3, Remaining: 25, Interval: 50, Callback: ir.Function("onButton", nil), Watch: 1},
		},
	}
}
