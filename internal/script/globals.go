package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/ir"
)

func (r *Runtime) installGlobals() error {
	globals := map[string]any{
		"setTimeout":     r.timerFunc(false),
		"setInterval":    r.timerFunc(true),
		"clearTimeout":   r.clearTimer,
		"clearInterval":  r.clearTimer,
		"changeInterval": r.changeInterval,
		"setWatch":       r.setWatch,
		"clearWatch":     r.clearWatch,
		"getTime":        r.getTime,
		"print":          r.print,
		"onData":         r.onData,
		"reset":          func() { r.sched.RequestReset() },
		"save":           func() { r.sched.RequestSave() },
		"load":           func() { r.sched.RequestLoad() },
		"dump":           r.dump,
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	console := r.vm.NewObject()
	if err := console.Set("log", r.print); err != nil {
		return fmt.Errorf("install console.log: %w", err)
	}
	return r.vm.Set("console", console)
}

// timerFunc builds setTimeout and setInterval. Extra arguments after the
// interval are passed to the callback instead of the event object.
func (r *Runtime) timerFunc(recurring bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var bound []goja.Value
		if len(call.Arguments) > 2 {
			bound = call.Arguments[2:]
		}
		target := r.mustTarget(call.Argument(0), bound)
		ticks := r.sched.ClampInterval(r.ticks(call.Argument(1)))
		h, err := r.sched.ScheduleTimer(ticks, recurring, target)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		return r.vm.ToValue(h.ID())
	}
}

// clearTimer with no argument removes every timer.
func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		r.sched.CancelAllTimers()
		return goja.Undefined()
	}
	if err := r.sched.CancelTimer(r.handle(call.Argument(0))); err != nil {
		panic(r.vm.NewGoError(err))
	}
	return goja.Undefined()
}

func (r *Runtime) changeInterval(call goja.FunctionCall) goja.Value {
	ticks := r.sched.ClampInterval(r.ticks(call.Argument(1)))
	if err := r.sched.ChangeInterval(r.handle(call.Argument(0)), ticks); err != nil {
		panic(r.vm.NewGoError(err))
	}
	return goja.Undefined()
}

// setWatch(fn, pin, options). options is either a boolean (repeat) or an
// object with repeat, edge and debounce (milliseconds).
func (r *Runtime) setWatch(call goja.FunctionCall) goja.Value {
	target := r.mustTarget(call.Argument(0), nil)
	pin := int(call.Argument(1).ToInteger())

	recurring := false
	edge := ir.EdgeBoth
	var debounce int64

	switch opts := call.Argument(2).(type) {
	case *goja.Object:
		if v := opts.Get("repeat"); v != nil {
			recurring = v.ToBoolean()
		}
		if v := opts.Get("edge"); v != nil && !goja.IsUndefined(v) {
			e, err := ir.ParseEdge(v.String())
			if err != nil {
				panic(r.vm.NewGoError(engine.NewInvalidEdgeError(pin, v.String())))
			}
			edge = e
		}
		if v := opts.Get("debounce"); v != nil && !goja.IsUndefined(v) {
			debounce = r.ticks(v)
		}
	default:
		if opts != nil && !goja.IsUndefined(opts) {
			recurring = opts.ToBoolean()
		}
	}

	h, err := r.sched.AddWatch(pin, edge, recurring, debounce, target)
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	return r.vm.ToValue(h.ID())
}

// clearWatch with no argument removes every watch.
func (r *Runtime) clearWatch(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		r.sched.RemoveAllWatches()
		return goja.Undefined()
	}
	if err := r.sched.RemoveWatch(r.handle(call.Argument(0))); err != nil {
		panic(r.vm.NewGoError(err))
	}
	return goja.Undefined()
}

// getTime returns the current time in seconds.
func (r *Runtime) getTime() float64 {
	return r.seconds(r.sched.Now())
}

func (r *Runtime) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
	return goja.Undefined()
}

// onData(device, fn) registers the handler for serial data on device.
// A null or undefined fn removes it.
func (r *Runtime) onData(call goja.FunctionCall) goja.Value {
	device := int(call.Argument(0).ToInteger())
	fn := call.Argument(1)
	if goja.IsUndefined(fn) || goja.IsNull(fn) {
		delete(r.handlers, device)
		return goja.Undefined()
	}
	r.handlers[device] = r.mustTarget(fn, nil)
	return goja.Undefined()
}

func (r *Runtime) dump() {
	if err := r.sched.DumpState(r.out); err != nil {
		panic(r.vm.NewGoError(err))
	}
}

// mustTarget converts a script value into a callback target, throwing a
// TypeError for anything that cannot be called.
func (r *Runtime) mustTarget(v goja.Value, bound []goja.Value) *ir.Target {
	t, err := r.toTarget(v, bound)
	if err != nil {
		panic(r.vm.NewTypeError(err.Error()))
	}
	return t
}

// toTarget maps strings to source targets, arrays to lists and functions
// to function targets. Functions reachable as a global of the same name
// keep that name; anything else is kept as a closure over its source.
func (r *Runtime) toTarget(v goja.Value, bound []goja.Value) (*ir.Target, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("callback is required")
	}
	if s, ok := v.Export().(string); ok {
		return ir.Source(s), nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", v.String())
	}

	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		members := make([]*ir.Target, 0, n)
		for i := range n {
			m, err := r.toTarget(obj.Get(strconv.Itoa(i)), bound)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			members = append(members, m)
		}
		return ir.List(members...), nil
	}

	fn, ok := goja.AssertFunction(obj)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", obj.ClassName())
	}
	live := func(args ir.Args) error {
		if bound != nil {
			_, err := fn(goja.Undefined(), bound...)
			return r.convertErr(err)
		}
		return r.call(fn, args)
	}

	if name := obj.Get("name"); name != nil {
		if n := name.String(); n != "" && r.vm.Get(n) != nil && r.vm.Get(n).StrictEquals(obj) {
			return ir.Function(n, live), nil
		}
	}
	return ir.Closure("("+obj.String()+")", live), nil
}

// ticks converts a millisecond script value to scheduler ticks.
func (r *Runtime) ticks(v goja.Value) int64 {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	return r.sched.TickRate().FromMillis(v.ToFloat())
}

func (r *Runtime) seconds(ticks int64) float64 {
	return float64(ticks) / float64(r.rate())
}

func (r *Runtime) rate() engine.TickRate {
	if r.sched == nil {
		return engine.DefaultTickRate
	}
	return r.sched.TickRate()
}

func (r *Runtime) handle(v goja.Value) engine.Handle {
	return engine.HandleFromID(v.ToInteger())
}

// toJS converts callback arguments. Event times are reported in seconds.
func (r *Runtime) toJS(v ir.IRValue) goja.Value {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return r.vm.ToValue(ir.ToGo(v))
	}
	out := r.vm.NewObject()
	for _, k := range obj.SortedKeys() {
		val := obj[k]
		if n, isInt := val.(ir.IRInt); isInt && (k == "time" || k == "lastTime") {
			_ = out.Set(k, r.seconds(int64(n)))
			continue
		}
		_ = out.Set(k, r.toJS(val))
	}
	return out
}
