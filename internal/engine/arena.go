package engine

import "math"

// Handle addresses a timer or watch. It stays valid until the entry is
// removed; after that the slot's generation moves on and the handle
// resolves to nothing, even if the slot is reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

// ID packs the handle into a positive integer for scripts and snapshots.
// Fresh slots produce small IDs (1, 2, 3...).
func (h Handle) ID() int64 {
	if h.IsZero() {
		return 0
	}
	return int64(h.gen-1)<<32 | int64(h.index+1)
}

// HandleFromID reverses ID. Non-positive IDs yield the zero handle.
func HandleFromID(id int64) Handle {
	low := uint32(id & math.MaxUint32)
	if id <= 0 || low == 0 {
		return Handle{}
	}
	return Handle{index: low - 1, gen: uint32(id>>32) + 1}
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// arena stores entries addressed by generational handles and remembers
// insertion order. Pointers returned by get are invalidated by insert.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	order []Handle
	live  int
}

func (a *arena[T]) insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.live = true
	s.val = v
	h := Handle{index: idx, gen: s.gen}
	a.order = append(a.order, h)
	a.live++
	return h
}

func (a *arena[T]) get(h Handle) (*T, bool) {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.val, true
}

func (a *arena[T]) remove(h Handle) bool {
	if _, ok := a.get(h); !ok {
		return false
	}
	s := &a.slots[h.index]
	var zero T
	s.val = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.index)
	a.live--
	return true
}

// handles returns the live handles in insertion order. The result is a
// copy, safe to range over while the arena changes.
func (a *arena[T]) handles() []Handle {
	kept := a.order[:0]
	for _, h := range a.order {
		if _, ok := a.get(h); ok {
			kept = append(kept, h)
		}
	}
	clear(a.order[len(kept):])
	a.order = kept
	out := make([]Handle, len(kept))
	copy(out, kept)
	return out
}

func (a *arena[T]) len() int {
	return a.live
}

// reset removes every entry. Generations are kept so handles issued
// before the reset never resolve to entries inserted after it.
func (a *arena[T]) reset() {
	for i := range a.slots {
		if a.slots[i].live {
			a.remove(Handle{index: uint32(i), gen: a.slots[i].gen})
		}
	}
	a.order = a.order[:0]
}
