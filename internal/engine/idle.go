package engine

import (
	"context"

	"github.com/roach88/tickloop/internal/hw"
)

// IdleStep runs one scheduler tick and reports whether it did real work.
// The driver loop calls it forever; it never re-enters itself.
//
// Order: drain raw events, advance timers, poll other subsystems, update
// the idle streak, drain the call queue, surface interrupts, run at most
// one maintenance request, then reclaim memory or sleep when idle.
func (s *Scheduler) IdleStep(ctx context.Context) bool {
	s.owner.bind()
	s.owner.check("IdleStep")
	if s.inStep {
		s.logger.Error("IdleStep re-entered from a callback; ignoring")
		return false
	}
	s.inStep = true
	defer func() { s.inStep = false }()

	var stats StepStats

	stats.RawEvents = s.drainEvents()

	now := s.hw.Now()
	elapsed := now - s.lastStep
	s.lastStep = now

	minRemaining, fired := s.StepTimers(elapsed)
	stats.TimersFired = fired

	otherWork := s.otherIdle != nil && s.otherIdle.Idle()

	if stats.RawEvents == 0 && fired == 0 && s.queue.len() == 0 && !otherWork {
		if s.idleStreak < maxIdleStreak {
			s.idleStreak++
		}
	} else {
		s.idleStreak = 0
	}

	if !s.interrupt.Load() {
		stats.Drained = s.DrainQueue()
	}

	if s.interruptedDuringEvent {
		s.interrupt.Store(false)
		s.interruptedDuringEvent = false
		stats.Interrupted = true
		s.report("Execution Interrupted during event processing.")
	}

	s.runMaintenance(ctx)

	if s.idleStreak == 1 && minRemaining > s.reclaimThreshold {
		s.setBusy(busyReclaim, true)
		s.reclaimer.Reclaim()
		s.setBusy(busyReclaim, false)
		stats.Reclaimed = true
	}

	if s.idleStreak > s.sleepAfter && !s.hw.HasEvents() && !s.hw.HasTransmitData() && !s.hw.MustStayAwake() {
		if budget := min(minRemaining, s.sleepCap); budget > 0 {
			s.hw.Sleep(budget)
			stats.Slept = budget
		}
	}

	// An interrupt that arrived while nothing was draining is reported here
	// so the next step drains normally.
	if s.interrupt.Load() {
		s.interrupt.Store(false)
		stats.Interrupted = true
		s.report("Execution Interrupted.")
	}

	stats.DidWork = s.idleStreak == 0
	if s.observer != nil {
		stats.QueueDepth = s.queue.len()
		stats.Timers = s.timers.len()
		stats.Watches = s.watches.len()
		s.observer.ObserveStep(stats)
	}
	return stats.DidWork
}

// drainEvents empties the event ring. Consecutive serial events from the
// same device are coalesced into one push. Events stay in the ring while
// an interrupt is pending.
func (s *Scheduler) drainEvents() int {
	n := 0
	defer s.setBusy(busyEvents, false)
	for !s.interrupt.Load() {
		ev, ok := s.hw.PopEvent()
		if !ok {
			return n
		}
		n++
		s.setBusy(busyEvents, true)

		switch ev.Kind {
		case hw.KindPin:
			s.OnRawEdgeEvent(ev.Device, ev.High(), ev.Time)

		case hw.KindSerial:
			if ev.Device == s.consoleDevice {
				for _, c := range ev.Data() {
					s.console.PushChar(c)
				}
				continue
			}
			data := append([]byte(nil), ev.Data()...)
			for {
				next, ok := s.hw.PeekEvent()
				if !ok || next.Kind != hw.KindSerial || next.Device != ev.Device {
					break
				}
				s.hw.PopEvent()
				n++
				data = append(data, next.Data()...)
			}
			s.pushStream(ev.Device, data)

		default:
			s.logger.Warn("dropping unknown hardware event", "kind", ev.Kind.String(), "device", ev.Device)
		}
	}
	return n
}

func (s *Scheduler) pushStream(device int, data []byte) {
	if size, ok := s.byteSize[device]; ok && size < 8 {
		mask := byte(1<<size - 1)
		for i := range data {
			data[i] &= mask
		}
	}
	if s.streams == nil {
		s.logger.Debug("no stream sink, dropping serial data", "device", device, "bytes", len(data))
		return
	}
	s.streams.PushData(device, data)
}
