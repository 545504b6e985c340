package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/tickloop/internal/hw"
	"github.com/roach88/tickloop/internal/ir"
	"github.com/roach88/tickloop/internal/testutil"
)

// testRig wires a scheduler to a simulated board and recording
// collaborators. One tick is one millisecond and sleeping is off unless
// a test turns it back on.
type testRig struct {
	t       *testing.T
	sim     *hw.Sim
	rec     *testutil.Recorder
	console *testutil.Console
	streams *testutil.Streams
	reclaim *testutil.Counter
	s       *Scheduler
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	return newTestRigOn(t, hw.NewSim(), opts...)
}

func newTestRigOn(t *testing.T, sim *hw.Sim, opts ...Option) *testRig {
	t.Helper()
	r := &testRig{
		t:       t,
		sim:     sim,
		rec:     testutil.NewRecorder(),
		console: &testutil.Console{},
		streams: &testutil.Streams{},
		reclaim: &testutil.Counter{},
	}
	base := []Option{
		WithInvoker(r.rec),
		WithConsole(r.console),
		WithStreamSink(r.streams),
		WithReclaimer(r.reclaim),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTickRate(1000),
		WithSleepAfter(maxIdleStreak),
	}
	r.s = New(r.sim, append(base, opts...)...)
	return r
}

// step runs one IdleStep.
func (r *testRig) step() bool {
	return r.s.IdleStep(context.Background())
}

// stepAt advances the board to tick at and runs one IdleStep.
func (r *testRig) stepAt(at int64) bool {
	r.t.Helper()
	if d := at - r.sim.Now(); d > 0 {
		r.sim.Advance(d)
	}
	return r.step()
}

func (r *testRig) fn(name string) *ir.Target {
	return r.rec.Target(name)
}

func (r *testRig) timeout(ms int64, name string) Handle {
	r.t.Helper()
	h, err := r.s.ScheduleTimer(ms, false, r.fn(name))
	if err != nil {
		r.t.Fatalf("ScheduleTimer: %v", err)
	}
	return h
}

func (r *testRig) interval(ms int64, name string) Handle {
	r.t.Helper()
	h, err := r.s.ScheduleTimer(ms, true, r.fn(name))
	if err != nil {
		r.t.Fatalf("ScheduleTimer: %v", err)
	}
	return h
}

// eventTimes returns the "time" field of every call to name.
func (r *testRig) eventTimes(name string) []int64 {
	var out []int64
	for _, c := range r.rec.Calls() {
		if c.Name != name {
			continue
		}
		n, _ := c.Event().Int("time")
		out = append(out, n)
	}
	return out
}

// memPersister keeps one snapshot in memory.
type memPersister struct {
	saved   *ir.Snapshot
	saves   int
	loadErr error
}

func (p *memPersister) SaveSnapshot(_ context.Context, snap ir.Snapshot) (string, error) {
	p.saves++
	cp := snap
	p.saved = &cp
	return "mem", nil
}

func (p *memPersister) LoadSnapshot(context.Context) (*ir.Snapshot, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.saved == nil {
		return &ir.Snapshot{}, nil
	}
	cp := *p.saved
	return &cp, nil
}

// statsObserver records every step and failure.
type statsObserver struct {
	steps    []StepStats
	failures []string
}

func (o *statsObserver) ObserveStep(s StepStats) { o.steps = append(o.steps, s) }

func (o *statsObserver) ObserveFailure(source string) { o.failures = append(o.failures, source) }
