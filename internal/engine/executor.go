package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/tickloop/internal/ir"
)

// ChainResult is the outcome of ExecuteCallbackChain.
type ChainResult int

const (
	// ChainOK means every member ran and returned without error.
	ChainOK ChainResult = iota
	// ChainFailed means a member failed, or an interrupt arrived while the
	// chain was running.
	ChainFailed
	// ChainDeferred means an interrupt was already pending, so nothing ran.
	// The caller keeps its timer or watch for the next step.
	ChainDeferred
)

func (r ChainResult) String() string {
	switch r {
	case ChainOK:
		return "ok"
	case ChainFailed:
		return "failed"
	case ChainDeferred:
		return "deferred"
	}
	return fmt.Sprintf("ChainResult(%d)", int(r))
}

// ExecuteCallbackChain runs every member of target (lists expanded
// depth-first) with args.
//
// Failures are reported to the console but do not stop the remaining
// members. An interrupt stops the chain before the next member; if it
// arrived during the chain, the step reports it as interrupted during
// event processing.
func (s *Scheduler) ExecuteCallbackChain(target *ir.Target, args ir.Args) ChainResult {
	if s.interrupt.Load() {
		return ChainDeferred
	}
	result, interrupted := ChainOK, false
	for _, member := range target.Flatten() {
		if s.interrupt.Load() {
			break
		}
		err := s.invoke(member, args)
		if err == nil {
			continue
		}
		result = ChainFailed
		if errors.Is(err, ErrInterrupted) {
			interrupted = true
			break
		}
	}
	if interrupted || s.interrupt.Load() {
		s.interruptedDuringEvent = true
		return ChainFailed
	}
	return result
}

// invoke runs one non-list target, turning panics into errors so a broken
// callback cannot take the scheduler down.
func (s *Scheduler) invoke(target *ir.Target, args ir.Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*SchedulerError); ok && se.Code == ErrCodeForeignGoroutine {
				panic(r)
			}
			err = fmt.Errorf("callback panicked: %v", r)
		}
		if err != nil && !errors.Is(err, ErrInterrupted) {
			s.logger.Warn("callback failed", "target", target.String(), "error", err)
			s.console.Report(fmt.Sprintf("Uncaught %v", err))
		}
	}()
	return s.invoker.Invoke(target, args)
}

// FuncRegistry is the default Invoker. It runs native Func targets and
// resolves nameless-bodied function targets by name. Source targets are
// not evaluated.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]ir.Func
}

// NewFuncRegistry creates an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]ir.Func)}
}

// Register binds name to fn, replacing any earlier binding.
func (r *FuncRegistry) Register(name string, fn ir.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the function registered under name.
func (r *FuncRegistry) Lookup(name string) (ir.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Invoke implements Invoker.
func (r *FuncRegistry) Invoke(target *ir.Target, args ir.Args) error {
	switch target.Kind {
	case ir.TargetFunction:
		if target.Func != nil {
			return target.Func(args)
		}
		if fn, ok := r.Lookup(target.Name); ok {
			return fn(args)
		}
		return fmt.Errorf("function %q is not defined", target.Name)
	case ir.TargetSource:
		return fmt.Errorf("no evaluator for source callback %s", target.String())
	}
	return fmt.Errorf("cannot invoke %s target", target.Kind)
}
