package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/hw"
	"github.com/roach88/tickloop/internal/ir"
	tu "github.com/roach88/tickloop/internal/testutil"
)

func TestObserveStep(t *testing.T) {
	e, err := NewExporter("", prometheus.NewRegistry())
	require.NoError(t, err)

	e.ObserveStep(engine.StepStats{DidWork: true, RawEvents: 3, TimersFired: 2, Drained: 4, QueueDepth: 1, Timers: 5, Watches: 2})
	e.ObserveStep(engine.StepStats{Slept: 250, Reclaimed: true, Interrupted: true, Timers: 4})

	assert.Equal(t, 1.0, testutil.ToFloat64(e.steps.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.steps.WithLabelValues("false")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.queueDepth))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.timers))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.watches))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.rawEvents))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.fired))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.drained))
	assert.Equal(t, 250.0, testutil.ToFloat64(e.sleepTicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.reclaims))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.interrupts))
}

func TestObserveFailure(t *testing.T) {
	e, err := NewExporter("", prometheus.NewRegistry())
	require.NoError(t, err)

	e.ObserveFailure("timer")
	e.ObserveFailure("timer")
	e.ObserveFailure("")

	assert.Equal(t, 2.0, testutil.ToFloat64(e.failures.WithLabelValues("timer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("unknown")))
}

func TestNilExporterIsSafe(t *testing.T) {
	var e *Exporter
	assert.NotPanics(t, func() {
		e.ObserveStep(engine.StepStats{DidWork: true})
		e.ObserveFailure("queue")
	})
}

func TestAlreadyRegisteredReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewExporter("tickloop", reg)
	require.NoError(t, err)
	second, err := NewExporter("tickloop", reg)
	require.NoError(t, err)

	first.ObserveFailure("watch")
	second.ObserveFailure("watch")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.failures.WithLabelValues("watch")))
}

func TestExporterObservesScheduler(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := NewExporter("", reg)
	require.NoError(t, err)

	rec := tu.NewRecorder()
	rec.FailOn("bad", nil)
	sim := hw.NewSim()
	s := engine.New(sim,
		engine.WithInvoker(rec),
		engine.WithObserver(e),
		engine.WithReclaimer(&tu.Counter{}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTickRate(1000),
		engine.WithSleepAfter(255),
	)
	_, err = s.ScheduleTimer(10, true, rec.Target("good"))
	require.NoError(t, err)
	require.NoError(t, s.QueueCallback(rec.Target("bad"), ir.IRInt(1)))

	ctx := context.Background()
	s.IdleStep(ctx)
	sim.Advance(10)
	s.IdleStep(ctx)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.fired))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.timers))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.steps.WithLabelValues("true")))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tickloop_timers_fired_total 1")
}
