package engine

import (
	"github.com/roach88/tickloop/internal/ir"
)

type watch struct {
	pin       int
	edge      ir.Edge
	recurring bool
	debounce  int64
	callback  *ir.Target
	lastFire  int64
	fired     bool // lastFire is meaningful
	lastLevel bool
	pending   Handle // debounce timer, owned by this watch
}

// WatchInfo is a read-only view of a live watch.
type WatchInfo struct {
	Handle    Handle
	Pin       int
	Edge      ir.Edge
	Recurring bool
	Debounce  int64
	Callback  *ir.Target
	LastFire  int64
	Fired     bool
	LastLevel bool
	Pending   Handle
}

// AddWatch subscribes callback to edges on pin and arms the pin's
// interrupt. A debounce window > 0 delays firing until the pin has been
// quiet for that many ticks; negative windows are treated as 0.
func (s *Scheduler) AddWatch(pin int, edge ir.Edge, recurring bool, debounce int64, callback *ir.Target) (Handle, error) {
	s.owner.check("AddWatch")
	if callback == nil {
		return Handle{}, newNoCallbackError("watch")
	}
	if !validEdge(edge) {
		return Handle{}, NewInvalidEdgeError(pin, string(edge))
	}
	if owner := s.hw.ReservedBy(pin); owner != "" {
		return Handle{}, NewPinReservedError(pin, owner)
	}
	if err := s.admit("watch", s.watches.len(), 1, s.maxWatches); err != nil {
		return Handle{}, err
	}
	h := s.watches.insert(watch{
		pin:       pin,
		edge:      edge,
		recurring: recurring,
		debounce:  max(debounce, 0),
		callback:  callback,
	})
	s.retainPin(pin)
	return h, nil
}

// RemoveWatch deletes a watch and its pending debounce timer. The pin's
// interrupt is disarmed once no watch references it.
func (s *Scheduler) RemoveWatch(h Handle) error {
	s.owner.check("RemoveWatch")
	w, ok := s.watches.get(h)
	if !ok {
		return newUnknownWatchError(h)
	}
	if !w.pending.IsZero() {
		s.cancelTimer(w.pending)
	}
	s.dropWatch(h)
	return nil
}

// RemoveAllWatches deletes every watch and disarms every watched pin.
func (s *Scheduler) RemoveAllWatches() {
	s.owner.check("RemoveAllWatches")
	for _, h := range s.watches.handles() {
		if w, ok := s.watches.get(h); ok && !w.pending.IsZero() {
			s.cancelTimer(w.pending)
		}
		s.dropWatch(h)
	}
}

// Watch returns a view of a live watch.
func (s *Scheduler) Watch(h Handle) (WatchInfo, bool) {
	w, ok := s.watches.get(h)
	if !ok {
		return WatchInfo{}, false
	}
	return w.info(h), true
}

// Watches returns every live watch in insertion order.
func (s *Scheduler) Watches() []WatchInfo {
	handles := s.watches.handles()
	out := make([]WatchInfo, 0, len(handles))
	for _, h := range handles {
		w, _ := s.watches.get(h)
		out = append(out, w.info(h))
	}
	return out
}

// IsWatchingPin reports whether any watch references pin.
func (s *Scheduler) IsWatchingPin(pin int) bool {
	return s.pinRefs[pin] > 0
}

func (w *watch) info(h Handle) WatchInfo {
	return WatchInfo{
		Handle:    h,
		Pin:       w.pin,
		Edge:      w.edge,
		Recurring: w.recurring,
		Debounce:  w.debounce,
		Callback:  w.callback,
		LastFire:  w.lastFire,
		Fired:     w.fired,
		LastLevel: w.lastLevel,
		Pending:   w.pending,
	}
}

// OnRawEdgeEvent dispatches a captured level change to every watch on pin.
//
// Debounced watches record the level and (re)start their debounce timer
// so it expires debounce ticks after this edge; the timer decides whether
// to fire from the final level. Other watches fire immediately when the
// edge matches, or on the next step if an interrupt is pending.
func (s *Scheduler) OnRawEdgeEvent(pin int, high bool, truncated uint32) {
	s.owner.check("OnRawEdgeEvent")
	eventTime := ReconstructTimestamp(s.hw.Now(), truncated, s.timestampBits)

	for _, h := range s.watches.handles() {
		w, ok := s.watches.get(h)
		if !ok || w.pin != pin {
			continue
		}
		w.lastLevel = high

		if w.debounce > 0 {
			remaining := eventTime - s.lastStep + w.debounce
			if t, ok := s.timers.get(w.pending); ok {
				t.remaining = remaining
				continue
			}
			th, err := s.insertTimer(timer{
				remaining: remaining,
				interval:  w.debounce,
				callback:  w.callback,
				watch:     h,
			})
			if err == nil {
				w.pending = th
			}
			continue
		}

		if EdgeMatches(w.edge, high) {
			event := ir.NewIRObject(
				ir.O("time", ir.IRInt(eventTime)),
				ir.O("pin", ir.IRInt(pin)),
				ir.O("state", ir.IRBool(high)),
			)
			if w.fired {
				event["lastTime"] = ir.IRInt(w.lastFire)
			}
			recurring := w.recurring
			result := s.ExecuteCallbackChain(w.callback, ir.Args{event})
			if result == ChainDeferred {
				s.deferWatchFire(h, eventTime)
				continue
			}
			if result == ChainFailed {
				if s.observer != nil {
					s.observer.ObserveFailure("watch")
				}
				if recurring {
					s.report("Error processing Watch - removing it.")
					recurring = false
				}
			}
			if !recurring {
				s.dropWatch(h)
				continue
			}
		}
		if w, ok := s.watches.get(h); ok {
			w.lastFire, w.fired = eventTime, true
		}
	}
}

// deferWatchFire parks an edge that arrived while an interrupt was pending
// on a due timer linked to the watch, so it fires on the next step with
// its original time.
func (s *Scheduler) deferWatchFire(h Handle, eventTime int64) {
	w, _ := s.watches.get(h)
	remaining := eventTime - s.lastStep
	if t, ok := s.timers.get(w.pending); ok {
		t.remaining = remaining
		return
	}
	th, err := s.insertTimer(timer{
		remaining: remaining,
		callback:  w.callback,
		watch:     h,
	})
	if err == nil {
		w.pending = th
	}
}

// dropWatch removes a watch without touching its debounce timer.
func (s *Scheduler) dropWatch(h Handle) {
	w, ok := s.watches.get(h)
	if !ok {
		return
	}
	pin := w.pin
	s.watches.remove(h)
	s.releasePin(pin)
}

func (s *Scheduler) retainPin(pin int) {
	s.pinRefs[pin]++
	if s.pinRefs[pin] == 1 {
		s.hw.PinWatch(pin, true)
	}
}

func (s *Scheduler) releasePin(pin int) {
	if s.pinRefs[pin] <= 1 {
		delete(s.pinRefs, pin)
		s.hw.PinWatch(pin, false)
		return
	}
	s.pinRefs[pin]--
}
