package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/tickloop/internal/ir"
)

// deferredCall is one pending invocation. List targets never reach the
// queue; QueueCallback expands them.
type deferredCall struct {
	target *ir.Target
	args   ir.Args
}

// callQueue is the FIFO of deferred calls. It is only touched by the
// consumer goroutine, so it carries no lock.
type callQueue struct {
	calls []deferredCall
	limit int // 0 = unbounded
}

func newCallQueue(limit int) *callQueue {
	return &callQueue{
		calls: make([]deferredCall, 0, 16),
		limit: limit,
	}
}

// push appends a call. It returns false when the queue is at its limit.
func (q *callQueue) push(c deferredCall) bool {
	if q.limit > 0 && len(q.calls) >= q.limit {
		return false
	}
	q.calls = append(q.calls, c)
	return true
}

func (q *callQueue) pop() (deferredCall, bool) {
	if len(q.calls) == 0 {
		return deferredCall{}, false
	}
	c := q.calls[0]

	// Clear the slot so the backing array does not pin the target.
	q.calls[0] = deferredCall{}
	if len(q.calls) == 1 {
		q.calls = q.calls[:0]
	} else {
		q.calls = q.calls[1:]
	}
	return c, true
}

func (q *callQueue) len() int {
	return len(q.calls)
}

func (q *callQueue) reset() {
	clear(q.calls)
	q.calls = q.calls[:0]
}

// QueueCallback defers a call to target with up to ir.MaxArgs arguments.
// A nil target is a no-op. List targets are expanded (recursively) into
// one deferred call per member, in order, all sharing args.
//
// If the queue cannot hold every member nothing is queued, a warning is
// reported and an OUT_OF_MEMORY error returned.
func (s *Scheduler) QueueCallback(target *ir.Target, args ...ir.IRValue) error {
	s.owner.check("QueueCallback")
	if target == nil {
		return nil
	}
	if len(args) > ir.MaxArgs {
		return &SchedulerError{
			Code:    ErrCodeTooManyArgs,
			Message: fmt.Sprintf("%d arguments given, at most %d allowed", len(args), ir.MaxArgs),
		}
	}
	members := target.Flatten()
	if err := s.admit("deferred call", s.queue.len(), len(members), s.queue.limit); err != nil {
		return err
	}
	bound := ir.Args(slices.Clone(args))
	for _, m := range members {
		s.queue.push(deferredCall{target: m, args: bound})
	}
	return nil
}

// DrainQueue runs deferred calls front to back until the queue is empty
// at the moment of the check, so calls queued by callbacks run in the same
// drain. There is no iteration bound: a callback that always re-queues
// itself keeps the drain going.
//
// The drain stops early, leaving the rest queued, once an interrupt is
// requested. An interrupt or a callback failure raises the
// interrupted-during-event condition, which IdleStep reports.
// It returns the number of calls run.
func (s *Scheduler) DrainQueue() int {
	s.owner.check("DrainQueue")
	if s.queue.len() == 0 || s.interrupt.Load() {
		return 0
	}
	s.setBusy(busyQueue, true)
	defer s.setBusy(busyQueue, false)

	ran := 0
	for !s.interrupt.Load() {
		call, ok := s.queue.pop()
		if !ok {
			break
		}
		ran++
		if err := s.invoke(call.target, call.args); err != nil {
			s.interruptedDuringEvent = true
			if s.observer != nil {
				s.observer.ObserveFailure("queue")
			}
		}
	}
	if s.interrupt.Load() {
		s.interruptedDuringEvent = true
	}
	return ran
}
