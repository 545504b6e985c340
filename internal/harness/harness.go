package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/roach88/tickloop/internal/config"
	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/hw"
	"github.com/roach88/tickloop/internal/ir"
	"github.com/roach88/tickloop/internal/testutil"
)

// Harness runs one scenario. It is the scheduler's invoker, console and
// stream sink, so every effect lands in the trace.
type Harness struct {
	sim    *hw.Sim
	sched  *engine.Scheduler
	rec    *testutil.Recorder
	logger *slog.Logger
	result *Result

	seq     int64
	line    []byte
	timers  map[string]engine.Handle
	watches map[string]engine.Handle
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the logger handed to the scheduler. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// baseConfig is what scenarios run with before their own overrides.
var baseConfig = map[string]any{
	"tick_rate":              1000,
	"sleep_after_idle_steps": 255,
}

// ScenarioConfig merges the scenario's overrides onto the harness
// defaults and validates the result against the configuration schema.
func ScenarioConfig(s *Scenario) (*config.Config, error) {
	merged := maps.Clone(baseConfig)
	maps.Copy(merged, s.Config)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return config.Parse(s.Name+".config.json", data)
}

// Run executes a scenario in a fresh scheduler and simulated board, then
// evaluates its assertions.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg, err := ScenarioConfig(scenario)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	h := &Harness{
		rec:     testutil.NewRecorder(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:  NewResult(),
		timers:  make(map[string]engine.Handle),
		watches: make(map[string]engine.Handle),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.sim = hw.NewSim(cfg.SimOptions()...)
	h.sched = engine.New(h.sim, append(cfg.EngineOptions(),
		engine.WithInvoker(h),
		engine.WithConsole(h),
		engine.WithStreamSink(h),
		engine.WithReclaimer(&testutil.Counter{}),
		engine.WithLogger(h.logger),
	)...)

	if err := h.setup(scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.step(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	h.result.State = FinalState{
		Timers:  h.sched.TimerCount(),
		Watches: h.sched.WatchCount(),
		Queue:   h.sched.QueueLen(),
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) setup(setup Setup) error {
	for i, t := range setup.Timers {
		if t.Fail {
			h.rec.FailOn(t.Callback, nil)
		}
		hd, err := h.sched.ScheduleTimer(t.Interval, t.Recurring, h.rec.Target(t.Callback))
		if err != nil {
			return fmt.Errorf("timers[%d]: %w", i, err)
		}
		if _, dup := h.timers[t.Callback]; !dup {
			h.timers[t.Callback] = hd
		}
	}
	for _, t := range setup.Timers {
		if t.Cancels == "" {
			continue
		}
		victim := t.Cancels
		h.rec.On(t.Callback, func(ir.Args) {
			if err := h.sched.CancelTimer(h.timers[victim]); err != nil {
				h.logger.Debug("scenario cancel missed", "timer", victim, "error", err)
			}
		})
	}

	for i, w := range setup.Watches {
		if w.Fail {
			h.rec.FailOn(w.Callback, nil)
		}
		edge, err := ir.ParseEdge(w.Edge)
		if err != nil {
			return fmt.Errorf("watches[%d]: %w", i, err)
		}
		hd, err := h.sched.AddWatch(w.Pin, edge, w.Repeat, w.Debounce, h.rec.Target(w.Callback))
		if err != nil {
			return fmt.Errorf("watches[%d]: %w", i, err)
		}
		if _, dup := h.watches[w.Callback]; !dup {
			h.watches[w.Callback] = hd
		}
	}

	for i, c := range setup.Calls {
		if c.Fail {
			h.rec.FailOn(c.Callback, nil)
		}
		args := make([]ir.IRValue, len(c.Args))
		for j, a := range c.Args {
			v, err := ir.FromGo(a)
			if err != nil {
				return fmt.Errorf("calls[%d].args[%d]: %w", i, j, err)
			}
			args[j] = v
		}
		if err := h.sched.QueueCallback(h.rec.Target(c.Callback), args...); err != nil {
			return fmt.Errorf("calls[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) step(ctx context.Context, step Step) error {
	switch {
	case step.Advance > 0:
		h.sim.Advance(step.Advance)
		h.sched.IdleStep(ctx)

	case step.Idle > 0:
		for range step.Idle {
			h.sched.IdleStep(ctx)
		}

	case step.Edge != nil:
		e := step.Edge
		if e.At != nil {
			h.sim.ScheduleEdge(*e.At, e.Pin, e.High)
		} else if !h.sim.InjectEdge(e.Pin, e.High) {
			h.logger.Debug("edge not captured", "pin", e.Pin)
		}

	case step.Serial != nil:
		sr := step.Serial
		if sr.At != nil {
			h.sim.ScheduleSerial(*sr.At, sr.Device, []byte(sr.Data))
		} else {
			h.sim.InjectSerial(sr.Device, []byte(sr.Data))
		}

	case step.Console != "":
		h.sim.InjectConsole(step.Console)

	case step.Cancel != "":
		hd, ok := h.timers[step.Cancel]
		if !ok {
			return fmt.Errorf("cancel: no setup timer %q", step.Cancel)
		}
		return h.sched.CancelTimer(hd)

	case step.Remove != "":
		hd, ok := h.watches[step.Remove]
		if !ok {
			return fmt.Errorf("remove: no setup watch %q", step.Remove)
		}
		return h.sched.RemoveWatch(hd)

	case step.Interrupt:
		h.sched.Interrupt()
	}
	return nil
}

func (h *Harness) add(ev TraceEvent) {
	h.seq++
	ev.Seq = h.seq
	ev.Tick = h.sim.Now()
	h.result.Trace = append(h.result.Trace, ev)
}

// Invoke implements engine.Invoker.
func (h *Harness) Invoke(target *ir.Target, args ir.Args) error {
	name := target.Name
	if target.Kind == ir.TargetSource {
		name = "src:" + target.Source
	}
	var goArgs []any
	for _, a := range args {
		goArgs = append(goArgs, ir.ToGo(a))
	}
	h.add(TraceEvent{Type: EventCall, Callback: name, Args: goArgs})
	return h.rec.Invoke(target, args)
}

// PushChar implements engine.Console. Each completed line is traced.
func (h *Harness) PushChar(c byte) {
	if c != '\n' {
		h.line = append(h.line, c)
		return
	}
	h.add(TraceEvent{Type: EventConsole, Message: string(h.line)})
	h.line = h.line[:0]
}

// Report implements engine.Console.
func (h *Harness) Report(msg string) {
	h.add(TraceEvent{Type: EventReport, Message: msg})
}

// PushData implements engine.StreamSink.
func (h *Harness) PushData(device int, data []byte) {
	h.add(TraceEvent{Type: EventData, Device: device, Data: string(data)})
}
