// Package metrics exports scheduler activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/tickloop/internal/engine"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tickloop"

// Exporter implements engine.Observer on top of Prometheus collectors.
type Exporter struct {
	steps      *prometheus.CounterVec
	failures   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	timers     prometheus.Gauge
	watches    prometheus.Gauge
	sleepTicks prometheus.Counter
	reclaims   prometheus.Counter
	rawEvents  prometheus.Counter
	fired      prometheus.Counter
	drained    prometheus.Counter
	interrupts prometheus.Counter
}

var _ engine.Observer = (*Exporter)(nil)

// NewExporter creates and registers the collectors. A nil registerer
// means prometheus.DefaultRegisterer. Collectors already registered under
// the same name are reused.
func NewExporter(namespace string, reg prometheus.Registerer) (*Exporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	e := &Exporter{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Idle steps run, split by whether they did work.",
		}, []string{"work"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_failures_total",
			Help:      "Callbacks that failed, by what invoked them.",
		}, []string{"source"}),
		queueDepth: gauge("queue_depth", "Deferred calls left queued after the last step."),
		timers:     gauge("timers", "Live timers."),
		watches:    gauge("watches", "Live watches."),
		sleepTicks: counter("sleep_ticks_total", "Ticks requested from the hardware sleep."),
		reclaims:   counter("reclaims_total", "Memory reclaim passes."),
		rawEvents:  counter("raw_events_total", "Hardware events drained from the ring."),
		fired:      counter("timers_fired_total", "Timer expiries."),
		drained:    counter("queue_calls_total", "Deferred calls run."),
		interrupts: counter("interrupts_total", "Interrupts surfaced to the console."),
	}

	var err error
	if e.steps, err = registerCollector(reg, e.steps); err != nil {
		return nil, err
	}
	if e.failures, err = registerCollector(reg, e.failures); err != nil {
		return nil, err
	}
	for _, g := range []*prometheus.Gauge{&e.queueDepth, &e.timers, &e.watches} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}
	for _, c := range []*prometheus.Counter{&e.sleepTicks, &e.reclaims, &e.rawEvents, &e.fired, &e.drained, &e.interrupts} {
		if *c, err = registerCollector(reg, *c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ObserveStep implements engine.Observer.
func (e *Exporter) ObserveStep(st engine.StepStats) {
	if e == nil {
		return
	}
	e.steps.WithLabelValues(strconv.FormatBool(st.DidWork)).Inc()
	e.queueDepth.Set(float64(st.QueueDepth))
	e.timers.Set(float64(st.Timers))
	e.watches.Set(float64(st.Watches))
	e.rawEvents.Add(float64(st.RawEvents))
	e.fired.Add(float64(st.TimersFired))
	e.drained.Add(float64(st.Drained))
	if st.Slept > 0 {
		e.sleepTicks.Add(float64(st.Slept))
	}
	if st.Reclaimed {
		e.reclaims.Inc()
	}
	if st.Interrupted {
		e.interrupts.Inc()
	}
}

// ObserveFailure implements engine.Observer.
func (e *Exporter) ObserveFailure(source string) {
	if e == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	e.failures.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}
	return collector, err
}
