package hw

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer queue of events.
//
// Push may run concurrently with Pop/Peek, but each side must have exactly
// one goroutine. A full ring rejects new events; they are counted in
// Dropped and never block the producer.
type Ring struct {
	buf     []Event
	mask    uint64
	head    atomic.Uint64 // next slot the producer writes
	tail    atomic.Uint64 // next slot the consumer reads
	dropped atomic.Uint64
}

// NewRing returns a ring holding at least capacity events. Capacity is
// rounded up to a power of two (minimum 2).
func NewRing(capacity int) *Ring {
	size := 2
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]Event, size), mask: uint64(size - 1)}
}

// Cap returns the number of slots.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Push appends an event. It returns false if the ring is full.
func (r *Ring) Push(e Event) bool {
	head := r.head.Load()
	if head-r.tail.Load() == uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[head&r.mask] = e
	r.head.Store(head + 1)
	return true
}

// Pop removes the oldest event.
func (r *Ring) Pop() (Event, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return Event{}, false
	}
	e := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return e, true
}

// Peek returns the oldest event without removing it.
func (r *Ring) Peek() (Event, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return Event{}, false
	}
	return r.buf[tail&r.mask], true
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Dropped returns how many pushes were rejected because the ring was full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}
