package engine

import (
	"math"

	"github.com/roach88/tickloop/internal/ir"
)

// timer is a countdown entry. remaining is relative to the scheduler's
// lastStep, not an absolute deadline.
type timer struct {
	remaining int64
	interval  int64
	recurring bool
	callback  *ir.Target
	watch     Handle // set on debounce timers only

	stamp   uint64 // sweep that last decremented this timer
	rearmed bool   // ChangeInterval ran during a sweep
}

// TimerInfo is a read-only view of a live timer.
type TimerInfo struct {
	Handle    Handle
	Remaining int64
	Interval  int64
	Recurring bool
	Callback  *ir.Target
	Watch     Handle
}

// ScheduleTimer adds a timer firing after interval ticks, measured from
// now. Recurring timers refire every interval ticks; interval <= 0 makes
// a recurring timer fire on every step.
func (s *Scheduler) ScheduleTimer(interval int64, recurring bool, callback *ir.Target) (Handle, error) {
	s.owner.check("ScheduleTimer")
	if callback == nil {
		return Handle{}, newNoCallbackError("timer")
	}
	return s.insertTimer(timer{
		remaining: interval + s.sinceLastStep(),
		interval:  interval,
		recurring: recurring,
		callback:  callback,
	})
}

// CancelTimer removes a timer. Cancelling from inside a timer sweep,
// including a timer cancelling itself, aborts the rest of that sweep;
// the untouched timers are evaluated on the next step.
func (s *Scheduler) CancelTimer(h Handle) error {
	s.owner.check("CancelTimer")
	if !s.cancelTimer(h) {
		return newUnknownTimerError(h)
	}
	return nil
}

// CancelAllTimers removes every timer, debounce timers included.
func (s *Scheduler) CancelAllTimers() {
	s.owner.check("CancelAllTimers")
	for _, h := range s.timers.handles() {
		s.cancelTimer(h)
	}
}

// ChangeInterval sets a new interval and restarts the countdown from now.
func (s *Scheduler) ChangeInterval(h Handle, interval int64) error {
	s.owner.check("ChangeInterval")
	t, ok := s.timers.get(h)
	if !ok {
		return newUnknownTimerError(h)
	}
	t.interval = interval
	t.remaining = interval + s.sinceLastStep()
	if s.sweeping {
		t.stamp = s.sweepSeq
		t.rearmed = true
	}
	return nil
}

// Timer returns a view of a live timer.
func (s *Scheduler) Timer(h Handle) (TimerInfo, bool) {
	t, ok := s.timers.get(h)
	if !ok {
		return TimerInfo{}, false
	}
	return t.info(h), true
}

// Timers returns every live timer in insertion order.
func (s *Scheduler) Timers() []TimerInfo {
	handles := s.timers.handles()
	out := make([]TimerInfo, 0, len(handles))
	for _, h := range handles {
		t, _ := s.timers.get(h)
		out = append(out, t.info(h))
	}
	return out
}

func (t *timer) info(h Handle) TimerInfo {
	return TimerInfo{
		Handle:    h,
		Remaining: t.remaining,
		Interval:  t.interval,
		Recurring: t.recurring,
		Callback:  t.callback,
		Watch:     t.watch,
	}
}

// StepTimers subtracts elapsed from every live timer and fires those at
// or below zero. While an interrupt is pending, due timers stay in the
// table with their count at or below zero. It returns the smallest remaining count seen (MaxInt64
// for an empty table, 0 if the sweep was aborted) and how many fired.
func (s *Scheduler) StepTimers(elapsed int64) (minRemaining int64, fired int) {
	s.owner.check("StepTimers")
	s.sweepSeq++
	seq := s.sweepSeq
	s.sweeping, s.disturbed = true, false
	s.sweepMin = math.MaxInt64
	defer func() {
		s.sweeping = false
		s.setBusy(busyTimers, false)
	}()

	minRemaining = math.MaxInt64
	handles := s.timers.handles()
	for i, h := range handles {
		if s.disturbed {
			s.deferTimers(handles[i:], elapsed, seq)
			return 0, fired
		}
		t, ok := s.timers.get(h)
		if !ok {
			continue
		}
		if t.stamp == seq {
			minRemaining = min(minRemaining, t.remaining)
			continue
		}
		t.stamp = seq
		t.remaining -= elapsed
		minRemaining = min(minRemaining, t.remaining)
		if t.remaining > 0 {
			continue
		}
		// Due timers wait out a pending interrupt and fire next step.
		if s.interrupt.Load() {
			continue
		}
		s.setBusy(busyTimers, true)
		fired++
		s.fireTimer(h)
	}
	if s.disturbed {
		return 0, fired
	}
	return min(minRemaining, s.sweepMin), fired
}

// deferTimers charges elapsed to timers an aborted sweep never reached,
// without firing them.
func (s *Scheduler) deferTimers(rest []Handle, elapsed int64, seq uint64) {
	n := 0
	for _, h := range rest {
		if t, ok := s.timers.get(h); ok && t.stamp != seq {
			t.stamp = seq
			t.remaining -= elapsed
			n++
		}
	}
	s.logger.Debug("timer table changed during sweep", "deferred", n)
}

func (s *Scheduler) fireTimer(h Handle) {
	t, _ := s.timers.get(h)
	t.rearmed = false
	deadline := s.lastStep + t.remaining
	callback, recurring, link := t.callback, t.recurring, t.watch

	event := ir.NewIRObject(ir.O("time", ir.IRInt(deadline)))
	exec := true
	source := "timer"
	if w, ok := s.watches.get(link); ok {
		source = "watch"
		exec = EdgeMatches(w.edge, w.lastLevel)
		event["pin"] = ir.IRInt(w.pin)
		event["state"] = ir.IRBool(w.lastLevel)
		if w.fired {
			event["lastTime"] = ir.IRInt(w.lastFire)
		}
		w.lastFire, w.fired = deadline, true
	} else {
		link = Handle{}
	}

	ok := true
	if exec {
		ok = s.ExecuteCallbackChain(callback, ir.Args{event}) == ChainOK
		if !ok && s.observer != nil {
			s.observer.ObserveFailure(source)
		}
	}
	if !ok && recurring {
		s.report("Error processing interval - removing it.")
		recurring = false
	}

	// Callbacks may have grown the arenas, so re-resolve before touching entries.
	if w, alive := s.watches.get(link); alive {
		if w.pending == h {
			w.pending = Handle{}
		}
		if exec && (!w.recurring || !ok) {
			if !ok && w.recurring {
				s.report("Error processing Watch - removing it.")
			}
			s.dropWatch(link)
		}
	}

	t, alive := s.timers.get(h)
	if !alive {
		return
	}
	if !recurring {
		s.timers.remove(h)
		return
	}
	if !t.rearmed {
		t.remaining += max(t.interval, 0)
	}
}

func (s *Scheduler) insertTimer(t timer) (Handle, error) {
	if err := s.admit("timer", s.timers.len(), 1, s.maxTimers); err != nil {
		return Handle{}, err
	}
	if s.sweeping {
		s.sweepMin = min(s.sweepMin, t.remaining)
	}
	return s.timers.insert(t), nil
}

// cancelTimer removes a timer and unlinks it from its watch. Any removal
// through here during a sweep marks the sweep disturbed.
func (s *Scheduler) cancelTimer(h Handle) bool {
	t, ok := s.timers.get(h)
	if !ok {
		return false
	}
	if w, ok := s.watches.get(t.watch); ok && w.pending == h {
		w.pending = Handle{}
	}
	s.timers.remove(h)
	if s.sweeping {
		s.disturbed = true
	}
	return true
}

func (s *Scheduler) sinceLastStep() int64 {
	return s.hw.Now() - s.lastStep
}
