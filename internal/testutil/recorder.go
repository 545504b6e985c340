package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/tickloop/internal/ir"
)

// ErrInjected is returned for targets marked to fail.
var ErrInjected = errors.New("injected failure")

// Call is one recorded invocation.
type Call struct {
	Name string
	Args ir.Args
}

// Recorder is an invoker that records every call in order. Function
// targets are recorded by name (native Func bodies also run); source
// targets are recorded as "src:<text>".
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
	hooks map[string]func(ir.Args)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		fail:  make(map[string]error),
		hooks: make(map[string]func(ir.Args)),
	}
}

// FailOn makes calls to name return err (ErrInjected if err is nil).
func (r *Recorder) FailOn(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	r.fail[name] = err
}

// On runs hook whenever name is invoked, after recording it.
func (r *Recorder) On(name string, hook func(ir.Args)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = hook
}

// Target returns a function target that this recorder will record as name.
func (r *Recorder) Target(name string) *ir.Target {
	return ir.Function(name, nil)
}

// Invoke implements engine.Invoker.
func (r *Recorder) Invoke(target *ir.Target, args ir.Args) error {
	name := target.Name
	if target.Kind == ir.TargetSource {
		name = "src:" + target.Source
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: args})
	hook := r.hooks[name]
	err := r.fail[name]
	r.mu.Unlock()

	if hook != nil {
		hook(args)
	}
	if err != nil {
		return err
	}
	if target.Kind == ir.TargetFunction && target.Func != nil {
		return target.Func(args)
	}
	if target.Kind == ir.TargetList {
		return fmt.Errorf("list target reached invoker")
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Names returns the recorded call names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Name
	}
	return out
}

// Count returns how many times name was invoked.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls. Failures and hooks are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Event returns the first argument of a call as an object.
func (c Call) Event() ir.IRObject {
	if len(c.Args) == 0 {
		return nil
	}
	obj, _ := c.Args[0].(ir.IRObject)
	return obj
}
