package engine

import "fmt"

// Capacity is the allocation budget of the scheduler. Zero means
// unlimited. Exceeding a budget is handled like an allocation failure:
// the request is dropped, a warning reported and OUT_OF_MEMORY returned.
type Capacity struct {
	Timers  int
	Watches int
	Queue   int
}

// Capacity returns the configured limits.
func (s *Scheduler) Capacity() Capacity {
	return Capacity{Timers: s.maxTimers, Watches: s.maxWatches, Queue: s.queue.limit}
}

// admit checks that n more entries fit next to used under limit.
func (s *Scheduler) admit(what string, used, n, limit int) error {
	if limit <= 0 || used+n <= limit {
		return nil
	}
	s.report(fmt.Sprintf("Out of memory while adding %s", what))
	return &SchedulerError{
		Code:    ErrCodeOutOfMemory,
		Message: fmt.Sprintf("%s limit reached (%d)", what, limit),
		Details: map[string]string{
			"used":  fmt.Sprintf("%d", used),
			"limit": fmt.Sprintf("%d", limit),
		},
	}
}
