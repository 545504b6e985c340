package script

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/spf13/afero"

	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/ir"
)

// Runtime binds a goja VM to a scheduler.
type Runtime struct {
	vm     *goja.Runtime
	sched  *engine.Scheduler
	fs     afero.Fs
	dir    string
	out    io.Writer
	logger *slog.Logger
	echo   bool

	line     []byte
	handlers map[int]*ir.Target
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sets where print, console.log, dump and reports go.
// Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) { r.out = w }
}

// WithFs sets the filesystem used by RunFile and require.
// Default: the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(r *Runtime) { r.fs = fs }
}

// WithDir sets the directory require resolves relative paths against.
func WithDir(dir string) Option {
	return func(r *Runtime) { r.dir = dir }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithEcho prints "=value" after each console line, like a REPL.
func WithEcho(on bool) Option {
	return func(r *Runtime) { r.echo = on }
}

// New creates a Runtime. Call Bind before running any script.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		vm:       goja.New(),
		fs:       afero.NewOsFs(),
		dir:      ".",
		out:      os.Stdout,
		logger:   slog.Default(),
		handlers: make(map[int]*ir.Target),
	}
	for _, opt := range opts {
		opt(r)
	}

	registry := require.NewRegistry(require.WithLoader(r.loadModule))
	registry.Enable(r.vm)
	return r
}

// Bind attaches the scheduler and installs the script globals.
func (r *Runtime) Bind(s *engine.Scheduler) error {
	r.sched = s
	return r.installGlobals()
}

// VM exposes the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// Run executes a program. name is used in stack traces.
func (r *Runtime) Run(name, src string) error {
	r.vm.ClearInterrupt()
	_, err := r.vm.RunScript(name, src)
	return r.convertErr(err)
}

// RunFile reads path from the runtime's filesystem and runs it.
func (r *Runtime) RunFile(path string) error {
	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return r.Run(path, string(src))
}

// Invoke implements engine.Invoker.
func (r *Runtime) Invoke(target *ir.Target, args ir.Args) error {
	if r.sched != nil && !r.sched.Interrupted() {
		r.vm.ClearInterrupt()
	}
	switch target.Kind {
	case ir.TargetFunction:
		if target.Func != nil {
			return target.Func(args)
		}
		fn, ok := goja.AssertFunction(r.vm.Get(target.Name))
		if !ok {
			return fmt.Errorf("function %q is not defined", target.Name)
		}
		return r.call(fn, args)

	case ir.TargetSource:
		v, err := r.vm.RunString(target.Source)
		if err != nil {
			return r.convertErr(err)
		}
		// Persisted closures come back as parenthesised function source.
		if fn, ok := goja.AssertFunction(v); ok {
			return r.call(fn, args)
		}
		return nil
	}
	return fmt.Errorf("cannot invoke %s target", target.Kind)
}

// Interrupt implements engine.Interrupter.
func (r *Runtime) Interrupt() {
	r.vm.Interrupt(engine.ErrInterrupted)
}

// PushChar implements engine.Console. Complete lines are queued as source.
func (r *Runtime) PushChar(c byte) {
	if c != '\n' && c != '\r' {
		r.line = append(r.line, c)
		return
	}
	line := strings.TrimSpace(string(r.line))
	r.line = r.line[:0]
	if line == "" || r.sched == nil {
		return
	}
	if err := r.sched.QueueCallback(r.consoleLine(line)); err != nil {
		r.logger.Warn("console line dropped", "error", err)
	}
}

// Report implements engine.Console.
func (r *Runtime) Report(msg string) {
	fmt.Fprintln(r.out, msg)
}

// PushData implements engine.StreamSink.
func (r *Runtime) PushData(device int, data []byte) {
	h, ok := r.handlers[device]
	if !ok {
		r.logger.Debug("no onData handler", "device", device, "bytes", len(data))
		return
	}
	if err := r.sched.QueueCallback(h, ir.IRString(data)); err != nil {
		r.logger.Warn("serial data dropped", "device", device, "error", err)
	}
}

func (r *Runtime) consoleLine(src string) *ir.Target {
	if !r.echo {
		return ir.Source(src)
	}
	return ir.Function("", func(ir.Args) error {
		v, err := r.vm.RunString(src)
		if err != nil {
			return r.convertErr(err)
		}
		fmt.Fprintf(r.out, "=%s\n", v.String())
		return nil
	})
}

func (r *Runtime) call(fn goja.Callable, args ir.Args) error {
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = r.toJS(a)
	}
	_, err := fn(goja.Undefined(), jsArgs...)
	return r.convertErr(err)
}

// convertErr maps goja errors onto scheduler errors.
func (r *Runtime) convertErr(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok && errors.Is(v, engine.ErrInterrupted) {
			return v
		}
		return fmt.Errorf("%w: %v", engine.ErrInterrupted, interrupted.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(ex.Value().String())
	}
	return err
}

// loadModule serves require() from the runtime's filesystem.
func (r *Runtime) loadModule(path string) ([]byte, error) {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(r.dir, path)
	}
	data, err := afero.ReadFile(r.fs, full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return nil, err
	}
	return data, nil
}
