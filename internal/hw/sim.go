package hw

import (
	"slices"
	"sort"
	"sync"
)

// DefaultTimestampBits is the width of the captured tick counter.
const DefaultTimestampBits = 32

// DefaultRingCapacity matches the default event_buffer setting.
const DefaultRingCapacity = 128

type pendingEvent struct {
	at int64
	ev Event
}

// Sim is a simulated board. It owns a virtual clock and an event ring,
// captures edges only on armed pins, and sleeps by advancing virtual
// time up to the next scheduled event.
//
// Inject* and Schedule* are the interrupt side; the rest is called by the
// scheduler on the consumer goroutine.
type Sim struct {
	mu            sync.Mutex
	clock         *ManualClock
	ring          *Ring
	bits          uint
	consoleDevice int

	armed    map[int]bool
	reserved map[int]string
	levels   map[int]bool
	pending  []pendingEvent

	sleeps      []int64
	busy        bool
	busyChanges int
	txPending   bool
	stayAwake   bool
	resets      int
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithClock shares an existing clock with the board.
func WithClock(c *ManualClock) SimOption {
	return func(s *Sim) {
		s.clock = c
	}
}

// WithTimestampBits sets the captured counter width (8..32).
func WithTimestampBits(bits uint) SimOption {
	return func(s *Sim) {
		s.bits = bits
	}
}

// WithRingCapacity sets the event ring size.
func WithRingCapacity(n int) SimOption {
	return func(s *Sim) {
		s.ring = NewRing(n)
	}
}

// WithConsoleDevice sets which serial device InjectConsole writes to.
func WithConsoleDevice(device int) SimOption {
	return func(s *Sim) {
		s.consoleDevice = device
	}
}

// NewSim creates a simulated board at tick 0 with nothing armed.
func NewSim(opts ...SimOption) *Sim {
	s := &Sim{
		bits:     DefaultTimestampBits,
		armed:    make(map[int]bool),
		reserved: make(map[int]string),
		levels:   make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewManualClock(0)
	}
	if s.ring == nil {
		s.ring = NewRing(DefaultRingCapacity)
	}
	return s
}

// Clock returns the board's virtual clock.
func (s *Sim) Clock() *ManualClock { return s.clock }

// Ring returns the board's event ring.
func (s *Sim) Ring() *Ring { return s.ring }

// TimestampBits returns the captured counter width.
func (s *Sim) TimestampBits() uint { return s.bits }

// --- interrupt side ---

// InjectEdge captures a level change on pin at the current tick. It
// returns false if the pin is not armed or the ring is full.
func (s *Sim) InjectEdge(pin int, high bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureEdge(s.clock.Now(), pin, high)
}

// InjectSerial captures bytes received on a serial device, split into
// events of at most MaxChars bytes. It returns the number of events stored.
func (s *Sim) InjectSerial(device int, data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range serialEvents(device, s.clock.Now(), s.bits, data) {
		if s.ring.Push(ev) {
			n++
		}
	}
	return n
}

// InjectConsole types text on the console device.
func (s *Sim) InjectConsole(text string) int {
	return s.InjectSerial(s.consoleDevice, []byte(text))
}

// ScheduleEdge arranges for a level change to be captured at tick at.
func (s *Sim) ScheduleEdge(at int64, pin int, high bool) {
	ev := Event{Kind: KindPin, Device: pin}
	if high {
		ev.Flags |= FlagHigh
	}
	s.schedule(pendingEvent{at: at, ev: ev})
}

// ScheduleSerial arranges for bytes to arrive on device at tick at.
func (s *Sim) ScheduleSerial(at int64, device int, data []byte) {
	for _, ev := range serialEvents(device, at, s.bits, data) {
		s.schedule(pendingEvent{at: at, ev: ev})
	}
}

func (s *Sim) schedule(p pendingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.pending), func(i int) bool { return s.pending[i].at > p.at })
	s.pending = slices.Insert(s.pending, i, p)
	s.releaseLocked(s.clock.Now())
}

// Advance moves virtual time forward, capturing scheduled events whose
// time has come.
func (s *Sim) Advance(d int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Advance(d)
	s.releaseLocked(now)
	return now
}

// NextScheduled returns the tick of the earliest scheduled event.
func (s *Sim) NextScheduled() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, false
	}
	return s.pending[0].at, true
}

// Reserve marks pin as claimed by another peripheral.
func (s *Sim) Reserve(pin int, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[pin] = owner
}

// SetTransmitPending simulates outbound serial data waiting to be sent.
func (s *Sim) SetTransmitPending(pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txPending = pending
}

// SetStayAwake simulates an external keep-awake signal (e.g. USB attached).
func (s *Sim) SetStayAwake(awake bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stayAwake = awake
}

func (s *Sim) captureEdge(at int64, pin int, high bool) bool {
	if !s.armed[pin] {
		return false
	}
	s.levels[pin] = high
	ev := Event{Kind: KindPin, Device: pin, Time: Truncate(at, s.bits)}
	if high {
		ev.Flags |= FlagHigh
	}
	return s.ring.Push(ev)
}

func (s *Sim) releaseLocked(now int64) {
	n := 0
	for n < len(s.pending) && s.pending[n].at <= now {
		p := s.pending[n]
		if p.ev.Kind == KindPin {
			s.captureEdge(p.at, p.ev.Device, p.ev.High())
		} else {
			s.ring.Push(p.ev)
		}
		n++
	}
	s.pending = s.pending[n:]
}

func serialEvents(device int, at int64, bits uint, data []byte) []Event {
	var out []Event
	for len(data) > 0 {
		ev := Event{Kind: KindSerial, Device: device, Time: Truncate(at, bits)}
		ev.N = uint8(copy(ev.Chars[:], data))
		data = data[ev.N:]
		out = append(out, ev)
	}
	return out
}

// --- consumer side ---

// Now returns the current virtual tick.
func (s *Sim) Now() int64 {
	return s.clock.Now()
}

// PopEvent removes the oldest captured event.
func (s *Sim) PopEvent() (Event, bool) {
	return s.ring.Pop()
}

// PeekEvent returns the oldest captured event without removing it.
func (s *Sim) PeekEvent() (Event, bool) {
	return s.ring.Peek()
}

// HasEvents reports whether captured events are waiting.
func (s *Sim) HasEvents() bool {
	return s.ring.Len() > 0
}

// HasTransmitData reports whether outbound data is pending.
func (s *Sim) HasTransmitData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txPending
}

// MustStayAwake reports the external keep-awake signal.
func (s *Sim) MustStayAwake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stayAwake
}

// ReservedBy returns the owner of a reserved pin, or "".
func (s *Sim) ReservedBy(pin int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved[pin]
}

// PinWatch arms or disarms edge capture on pin.
func (s *Sim) PinWatch(pin int, enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enable {
		s.armed[pin] = true
	} else {
		delete(s.armed, pin)
	}
}

// Armed reports whether pin captures edges.
func (s *Sim) Armed(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed[pin]
}

// ArmedPins returns the armed pins in ascending order.
func (s *Sim) ArmedPins() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pins := make([]int, 0, len(s.armed))
	for p := range s.armed {
		pins = append(pins, p)
	}
	slices.Sort(pins)
	return pins
}

// Level returns the last captured level of pin.
func (s *Sim) Level(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// Sleep records the request and advances virtual time by ticks, waking
// early at the next scheduled event. Buffered events make it return at once.
func (s *Sim) Sleep(ticks int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, ticks)
	if s.ring.Len() > 0 || ticks <= 0 {
		return
	}
	target := s.clock.Now() + ticks
	if len(s.pending) > 0 && s.pending[0].at < target {
		target = s.pending[0].at
	}
	s.clock.Set(target)
	s.releaseLocked(target)
}

// Sleeps returns every sleep request so far.
func (s *Sim) Sleeps() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sleeps)
}

// SetBusy records the busy indicator.
func (s *Sim) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy != busy {
		s.busyChanges++
	}
	s.busy = busy
}

// Busy returns the busy indicator.
func (s *Sim) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// BusyChanges counts busy indicator transitions.
func (s *Sim) BusyChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyChanges
}

// Reset disarms every pin and discards buffered and scheduled events.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = make(map[int]bool)
	for s.ring.Len() > 0 {
		s.ring.Pop()
	}
	s.pending = nil
	s.resets++
}

// Resets counts Reset calls.
func (s *Sim) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
