package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tickloop/internal/ir"
)

func TestIdleStep_PendingInterruptDefersDueTimers(t *testing.T) {
	r := newTestRig(t)
	r.timeout(10, "once")
	r.interval(10, "every")
	r.sim.Advance(10)
	r.s.Interrupt()

	r.step()
	assert.Empty(t, r.rec.Calls())
	assert.Equal(t, 2, r.s.TimerCount())
	assert.Equal(t, []string{"Execution Interrupted."}, r.console.Reports())

	r.step()
	assert.Equal(t, []string{"once", "every"}, r.rec.Names())
	assert.Equal(t, []int64{10}, r.eventTimes("once"))
	assert.Equal(t, 1, r.s.TimerCount())

	r.stepAt(20)
	assert.Equal(t, []int64{10, 20}, r.eventTimes("every"), "interval keeps its phase")
}

func TestIdleStep_PendingInterruptKeepsEdgeForNextStep(t *testing.T) {
	r := newTestRig(t)
	r.watch(3, ir.EdgeRising, true, 0, "btn")
	r.sim.InjectEdge(3, true)
	r.s.Interrupt()

	r.step()
	assert.Empty(t, r.rec.Calls())
	assert.Equal(t, 1, r.s.WatchCount())
	assert.True(t, r.sim.HasEvents())
	assert.Equal(t, []string{"Execution Interrupted."}, r.console.Reports())

	r.step()
	assert.Equal(t, 1, r.rec.Count("btn"))
	assert.Equal(t, 1, r.s.WatchCount())
	assert.True(t, r.sim.Armed(3))
}

// TestIdleStep_InterruptFromWatchDefersLaterWatches has the first watch
// on a pin raise an interrupt. It counts as interrupted and is removed;
// the second watch on the pin fires on the next step instead.
func TestIdleStep_InterruptFromWatchDefersLaterWatches(t *testing.T) {
	r := newTestRig(t)
	r.rec.On("first", func(ir.Args) { r.s.Interrupt() })
	r.watch(3, ir.EdgeRising, true, 0, "first")
	second := r.watch(3, ir.EdgeRising, true, 0, "second")
	r.sim.InjectEdge(3, true)

	r.step()
	assert.Equal(t, []string{"first"}, r.rec.Names())
	assert.Equal(t, []string{
		"Error processing Watch - removing it.",
		"Execution Interrupted during event processing.",
	}, r.console.Reports())
	info, ok := r.s.Watch(second)
	assert.True(t, ok)
	assert.False(t, info.Pending.IsZero())

	r.step()
	assert.Equal(t, []string{"first", "second"}, r.rec.Names())
	assert.Equal(t, []int64{0}, r.eventTimes("second"))
	assert.Equal(t, 1, r.s.WatchCount())
	assert.Equal(t, 0, r.s.TimerCount())
}

func TestIdleStep_InterruptedTimerIsReportedAsEventInterrupt(t *testing.T) {
	r := newTestRig(t)
	r.rec.FailOn("spin", ErrInterrupted)
	r.interval(10, "spin")

	r.stepAt(10)
	assert.Equal(t, []string{
		"Error processing interval - removing it.",
		"Execution Interrupted during event processing.",
	}, r.console.Reports())
	assert.Equal(t, 0, r.s.TimerCount())
	assert.False(t, r.s.Interrupted())
}
