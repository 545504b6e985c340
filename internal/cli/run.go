package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/tickloop/internal/config"
	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/hw"
	"github.com/roach88/tickloop/internal/metrics"
	"github.com/roach88/tickloop/internal/script"
	"github.com/roach88/tickloop/internal/store"
)

// maxStepsPerTick bounds how many working steps run before virtual time
// is forced forward, so an interval of zero cannot stall the run.
const maxStepsPerTick = 256

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config      string
	Database    string
	DurationMS  float64
	Edges       []string
	Input       string
	MetricsAddr string
	Echo        bool
	Load        bool
	Dump        bool
}

// RunSummary is the JSON payload of a finished run.
type RunSummary struct {
	Script    string `json:"script"`
	Ticks     int64  `json:"ticks"`
	BoardTime string `json:"board_time"`
	Steps     int    `json:"steps"`
	Timers    int    `json:"timers"`
	Watches   int    `json:"watches"`
	Queue     int    `json:"queue"`
}

// EdgeSpec is one --edge injection: pin goes to High at AtMS milliseconds.
type EdgeSpec struct {
	Pin  int
	AtMS float64
	High bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.js>",
		Short: "Run a script on the simulated board",
		Long: `Run a script against the scheduler in virtual time.

The script registers timers, watches and serial handlers. The scheduler then
steps until --duration milliseconds of board time have passed. Pin edges are
injected with --edge pin@ms=level and console input with --input.

Example:
  tickloop run blink.js --duration 5000
  tickloop run button.js --edge 3@100=1 --edge 3@140=0
  tickloop run app.js --db state.db --load`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "board configuration file (CUE or JSON)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for save() and load()")
	cmd.Flags().Float64Var(&opts.DurationMS, "duration", 1000, "board time to run, in milliseconds")
	cmd.Flags().StringArrayVar(&opts.Edges, "edge", nil, "inject a pin edge: pin@ms=0|1 (repeatable)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "console input fed to the board at start")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Echo, "echo", false, "print the value of each console line")
	cmd.Flags().BoolVar(&opts.Load, "load", false, "restore the last saved state after the script runs")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the timer and watch tables when the run ends")

	return cmd
}

// ParseEdge parses "pin@ms=level" where level is 0 or 1.
func ParseEdge(s string) (EdgeSpec, error) {
	pinPart, rest, ok := strings.Cut(s, "@")
	if !ok {
		return EdgeSpec{}, fmt.Errorf("edge %q: want pin@ms=level", s)
	}
	atPart, level, ok := strings.Cut(rest, "=")
	if !ok {
		return EdgeSpec{}, fmt.Errorf("edge %q: want pin@ms=level", s)
	}
	pin, err := strconv.Atoi(pinPart)
	if err != nil || pin < 0 {
		return EdgeSpec{}, fmt.Errorf("edge %q: bad pin %q", s, pinPart)
	}
	at, err := strconv.ParseFloat(atPart, 64)
	if err != nil || at < 0 {
		return EdgeSpec{}, fmt.Errorf("edge %q: bad time %q", s, atPart)
	}
	switch level {
	case "0":
		return EdgeSpec{Pin: pin, AtMS: at}, nil
	case "1":
		return EdgeSpec{Pin: pin, AtMS: at, High: true}, nil
	}
	return EdgeSpec{}, fmt.Errorf("edge %q: level must be 0 or 1", s)
}

func (o *RunOptions) loadConfig() (*config.Config, error) {
	if o.Config == "" {
		return config.Default(), nil
	}
	return config.Load(o.fs(), o.Config)
}

func runScript(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.newLogger(f.GetErrWriter())

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = f.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	edges := make([]EdgeSpec, 0, len(opts.Edges))
	for _, raw := range opts.Edges {
		e, err := ParseEdge(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --edge", err)
		}
		edges = append(edges, e)
	}
	if opts.Load && opts.Database == "" {
		return NewExitError(ExitCommandError, "--load needs --db")
	}

	// Script output shares stdout with the JSON summary only in text mode.
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		out = f.GetErrWriter()
	}

	sim := hw.NewSim(cfg.SimOptions()...)
	rt := script.New(
		script.WithOutput(out),
		script.WithFs(opts.fs()),
		script.WithDir(filepath.Dir(path)),
		script.WithLogger(logger),
		script.WithEcho(opts.Echo),
	)

	engineOpts := append(cfg.EngineOptions(),
		engine.WithInvoker(rt),
		engine.WithConsole(rt),
		engine.WithStreamSink(rt),
		engine.WithLogger(logger),
	)

	if opts.Database != "" {
		logger.Debug("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = f.Error(CodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithPersister(st))
	}

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		exp, err := metrics.NewExporter(metrics.DefaultNamespace, reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		engineOpts = append(engineOpts, engine.WithObserver(exp))

		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	sched := engine.New(sim, engineOpts...)
	if err := rt.Bind(sched); err != nil {
		return WrapExitError(ExitCommandError, "failed to install script globals", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			sched.Interrupt()
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Debug("running script", "path", path)
	if err := rt.RunFile(path); err != nil {
		_ = f.Error(CodeScript, err.Error(), nil)
		return WrapExitError(ExitFailure, "script failed", err)
	}
	if opts.Load {
		sched.RequestLoad()
	}

	// Edges only latch on armed pins, so inject after the script has
	// registered its watches.
	rate := sched.TickRate()
	for _, e := range edges {
		sim.ScheduleEdge(rate.FromMillis(e.AtMS), e.Pin, e.High)
	}
	if opts.Input != "" {
		sim.InjectConsole(opts.Input)
	}

	steps := drive(ctx, sched, sim, rate.FromMillis(opts.DurationMS))
	boardTime := rate.ToDuration(sim.Now())
	logger.Debug("run finished", "steps", steps, "board_time", boardTime)

	if opts.Dump {
		if err := sched.DumpState(out); err != nil {
			return WrapExitError(ExitCommandError, "failed to dump state", err)
		}
	}

	if opts.Format == "json" {
		return f.Success(RunSummary{
			Script:    path,
			Ticks:     sim.Now(),
			BoardTime: boardTime.String(),
			Steps:     steps,
			Timers:    sched.TimerCount(),
			Watches:   sched.WatchCount(),
			Queue:     sched.QueueLen(),
		})
	}
	return nil
}

// drive steps the scheduler until duration ticks of board time have
// passed or ctx is done. When a step neither works nor sleeps, the board
// clock moves forward by one millisecond. It returns the steps run.
func drive(ctx context.Context, sched *engine.Scheduler, sim *hw.Sim, duration int64) int {
	tick := max(sched.TickRate().FromDuration(time.Millisecond), 1)
	deadline := sim.Now() + duration
	steps, busy := 0, 0
	for sim.Now() < deadline && ctx.Err() == nil {
		before := sim.Now()
		worked := sched.IdleStep(ctx)
		steps++
		if sim.Now() != before {
			busy = 0
			continue
		}
		if worked {
			busy++
			if busy < maxStepsPerTick {
				continue
			}
		}
		busy = 0
		sim.Advance(min(tick, deadline-before))
	}
	return steps
}
