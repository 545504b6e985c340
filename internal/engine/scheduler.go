package engine

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/roach88/tickloop/internal/hw"
	"github.com/roach88/tickloop/internal/ir"
)

// Hardware is the board the scheduler drives. The consumer side of the
// event ring plus the pin, power and busy controls.
type Hardware interface {
	Now() int64
	PopEvent() (hw.Event, bool)
	PeekEvent() (hw.Event, bool)
	HasEvents() bool
	HasTransmitData() bool
	MustStayAwake() bool
	ReservedBy(pin int) string
	PinWatch(pin int, enable bool)
	Sleep(ticks int64)
	SetBusy(busy bool)
	Reset()
}

// Invoker runs a single (non-list) callback target.
type Invoker interface {
	Invoke(target *ir.Target, args ir.Args) error
}

// Interrupter is implemented by invokers that can abort a running callback.
// Interrupt may be called from any goroutine.
type Interrupter interface {
	Interrupt()
}

// Console receives console input characters and scheduler reports.
type Console interface {
	PushChar(c byte)
	Report(msg string)
}

// StreamSink receives data from non-console serial devices.
type StreamSink interface {
	PushData(device int, data []byte)
}

// Reclaimer frees memory when the scheduler has spare time.
type Reclaimer interface {
	Reclaim()
}

// OtherIdle polls subsystems outside the scheduler. Idle reports whether
// it did work.
type OtherIdle interface {
	Idle() bool
}

// Persister stores and restores table snapshots for save/load requests.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap ir.Snapshot) (string, error)
	LoadSnapshot(ctx context.Context) (*ir.Snapshot, error)
}

// Observer receives per-step statistics and failures.
type Observer interface {
	ObserveStep(StepStats)
	ObserveFailure(source string)
}

// StepStats summarises one IdleStep.
type StepStats struct {
	DidWork     bool
	RawEvents   int
	TimersFired int
	Drained     int
	QueueDepth  int
	Timers      int
	Watches     int
	Slept       int64
	Reclaimed   bool
	Interrupted bool
}

const (
	// DefaultReclaimThresholdMillis is the spare time needed before reclaiming.
	DefaultReclaimThresholdMillis = 10

	// DefaultSleepAfter is the idle streak that must be exceeded before sleeping.
	DefaultSleepAfter = 1

	// DefaultSleepCapMillis bounds a single sleep.
	DefaultSleepCapMillis = 1000

	// DefaultSerialByteSize is the number of data bits kept per serial byte.
	DefaultSerialByteSize = 8

	// maxIdleStreak is where idleStreak saturates.
	maxIdleStreak = math.MaxUint8
)

type busyReason uint8

const (
	busyEvents busyReason = 1 << iota
	busyTimers
	busyQueue
	busyMaintenance
	busyReclaim
)

type maintenanceRequest uint8

const (
	requestReset maintenanceRequest = 1 << iota
	requestSave
	requestLoad
)

// Scheduler is the cooperative timer/watch/event scheduler.
//
// All table mutations happen on one goroutine: the one that calls
// IdleStep. Scheduling calls (ScheduleTimer, AddWatch, QueueCallback...)
// run synchronously on that goroutine, between steps or from callbacks.
//
// Thread-safety model:
//   - Interrupt(): safe from any goroutine
//   - everything else: consumer goroutine only (checked when owner checks are on)
type Scheduler struct {
	hw        Hardware
	invoker   Invoker
	console   Console
	streams   StreamSink
	reclaimer Reclaimer
	otherIdle OtherIdle
	persister Persister
	observer  Observer
	logger    *slog.Logger

	tickRate         TickRate
	timestampBits    uint
	reclaimThreshold int64
	sleepCap         int64
	sleepAfter       uint8
	minInterval      int64
	consoleDevice    int
	byteSize         map[int]uint8
	maxTimers        int
	maxWatches       int

	queue   *callQueue
	timers  arena[timer]
	watches arena[watch]
	pinRefs map[int]int

	lastStep   int64
	idleStreak uint8
	sweepSeq   uint64
	sweeping   bool
	disturbed  bool
	sweepMin   int64
	inStep     bool

	interrupt              atomic.Bool
	interruptedDuringEvent bool
	maintenance            maintenanceRequest
	busy                   busyReason

	owner ownerGuard
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInvoker sets the collaborator that runs callbacks.
// Default: an empty FuncRegistry (native Func targets only).
func WithInvoker(inv Invoker) Option {
	return func(s *Scheduler) { s.invoker = inv }
}

// WithConsole sets the console collaborator.
func WithConsole(c Console) Option {
	return func(s *Scheduler) { s.console = c }
}

// WithStreamSink sets where non-console serial data goes.
func WithStreamSink(sink StreamSink) Option {
	return func(s *Scheduler) { s.streams = sink }
}

// WithReclaimer sets the memory-reclaim collaborator. Default: runtime.GC.
func WithReclaimer(r Reclaimer) Option {
	return func(s *Scheduler) { s.reclaimer = r }
}

// WithOtherIdle sets the collaborator polled once per step.
func WithOtherIdle(o OtherIdle) Option {
	return func(s *Scheduler) { s.otherIdle = o }
}

// WithPersister enables save and load maintenance requests.
func WithPersister(p Persister) Option {
	return func(s *Scheduler) { s.persister = p }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTickRate sets ticks per second. Default: DefaultTickRate.
func WithTickRate(r TickRate) Option {
	return func(s *Scheduler) { s.tickRate = r }
}

// WithTimestampBits sets the width of captured event timestamps.
func WithTimestampBits(bits uint) Option {
	return func(s *Scheduler) { s.timestampBits = bits }
}

// WithReclaimThreshold sets the spare ticks required before reclaiming.
func WithReclaimThreshold(ticks int64) Option {
	return func(s *Scheduler) { s.reclaimThreshold = ticks }
}

// WithSleepCap bounds a single hardware sleep, in ticks.
func WithSleepCap(ticks int64) Option {
	return func(s *Scheduler) { s.sleepCap = ticks }
}

// WithSleepAfter sets how many consecutive idle steps must pass before
// the scheduler sleeps (it sleeps once the streak exceeds n).
func WithSleepAfter(n uint8) Option {
	return func(s *Scheduler) { s.sleepAfter = n }
}

// WithMinInterval sets the smallest interval ClampInterval allows, in ticks.
func WithMinInterval(ticks int64) Option {
	return func(s *Scheduler) { s.minInterval = ticks }
}

// WithConsoleDevice sets the serial device whose input feeds the console.
func WithConsoleDevice(device int) Option {
	return func(s *Scheduler) { s.consoleDevice = device }
}

// WithSerialByteSize masks bytes from device to size bits (5..8).
func WithSerialByteSize(device int, size uint8) Option {
	return func(s *Scheduler) {
		if size >= 1 && size <= 8 {
			s.byteSize[device] = size
		}
	}
}

// WithCapacity limits timers, watches and queued calls. Zero means unlimited.
// Hitting a limit behaves like an allocation failure.
func WithCapacity(maxTimers, maxWatches, maxQueue int) Option {
	return func(s *Scheduler) {
		s.maxTimers = maxTimers
		s.maxWatches = maxWatches
		s.queue.limit = maxQueue
	}
}

// WithOwnerCheck toggles the single-goroutine assertion. Default: on.
func WithOwnerCheck(enabled bool) Option {
	return func(s *Scheduler) { s.owner.enabled = enabled }
}

// New creates a Scheduler driving hardware and runs SoftInit with empty tables.
func New(hardware Hardware, opts ...Option) *Scheduler {
	s := &Scheduler{
		hw:            hardware,
		invoker:       NewFuncRegistry(),
		reclaimer:     runtimeGC{},
		logger:        slog.Default(),
		tickRate:      DefaultTickRate,
		timestampBits: hw.DefaultTimestampBits,
		sleepAfter:    DefaultSleepAfter,
		byteSize:      make(map[int]uint8),
		queue:         newCallQueue(0),
		pinRefs:       make(map[int]int),
		owner:         ownerGuard{enabled: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reclaimThreshold == 0 {
		s.reclaimThreshold = s.tickRate.FromMillis(DefaultReclaimThresholdMillis)
	}
	if s.sleepCap == 0 {
		s.sleepCap = s.tickRate.FromMillis(DefaultSleepCapMillis)
	}
	if s.console == nil {
		s.console = discardConsole{}
	}
	s.lastStep = s.hw.Now()
	return s
}

// Now returns the hardware's current tick.
func (s *Scheduler) Now() int64 { return s.hw.Now() }

// TickRate returns ticks per second.
func (s *Scheduler) TickRate() TickRate { return s.tickRate }


// IdleStreak returns the number of consecutive steps that did no work.
func (s *Scheduler) IdleStreak() uint8 { return s.idleStreak }

// QueueLen returns the number of pending deferred calls.
func (s *Scheduler) QueueLen() int { return s.queue.len() }

// TimerCount returns the number of live timers.
func (s *Scheduler) TimerCount() int { return s.timers.len() }

// WatchCount returns the number of live watches.
func (s *Scheduler) WatchCount() int { return s.watches.len() }

// ClampInterval raises interval to the configured minimum.
func (s *Scheduler) ClampInterval(interval int64) int64 {
	return max(interval, s.minInterval)
}

// Interrupt requests that running and queued work stop. Queued calls are
// kept for the next step. Safe from any goroutine.
func (s *Scheduler) Interrupt() {
	s.interrupt.Store(true)
	if in, ok := s.invoker.(Interrupter); ok {
		in.Interrupt()
	}
}

// Interrupted reports whether an interrupt request is pending.
func (s *Scheduler) Interrupted() bool { return s.interrupt.Load() }

// RequestReset asks the next IdleStep to clear every table and reset the hardware.
func (s *Scheduler) RequestReset() { s.maintenance |= requestReset }

// RequestSave asks the next IdleStep to persist the tables.
func (s *Scheduler) RequestSave() { s.maintenance |= requestSave }

// RequestLoad asks the next IdleStep to replace the tables with the saved ones.
func (s *Scheduler) RequestLoad() { s.maintenance |= requestLoad }

// SoftKill disarms every watched pin and empties the queue and both tables.
func (s *Scheduler) SoftKill() {
	s.owner.check("SoftKill")
	for pin := range s.pinRefs {
		s.hw.PinWatch(pin, false)
	}
	clear(s.pinRefs)
	s.queue.reset()
	s.timers.reset()
	s.watches.reset()
	s.interruptedDuringEvent = false
	s.interrupt.Store(false)
	s.idleStreak = 0
}

// SoftInit resets the step clock and, if snap is non-nil, rebuilds the
// tables from it, re-arming pin interrupts.
func (s *Scheduler) SoftInit(snap *ir.Snapshot) error {
	s.owner.check("SoftInit")
	s.lastStep = s.hw.Now()
	if snap == nil {
		return nil
	}
	return s.restore(*snap)
}

func (s *Scheduler) setBusy(r busyReason, on bool) {
	was := s.busy != 0
	if on {
		s.busy |= r
	} else {
		s.busy &^= r
	}
	if now := s.busy != 0; now != was {
		s.hw.SetBusy(now)
	}
}

// report sends a message to the console and the log.
func (s *Scheduler) report(msg string, attrs ...any) {
	s.logger.Warn(msg, attrs...)
	s.console.Report(msg)
}

type runtimeGC struct{}

func (runtimeGC) Reclaim() { runtime.GC() }

// discardConsole drops console input. Reports still reach the logger.
type discardConsole struct{}

func (discardConsole) PushChar(byte) {}

func (discardConsole) Report(string) {}
