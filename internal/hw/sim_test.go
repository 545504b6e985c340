package hw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimIgnoresEdgesOnUnarmedPins(t *testing.T) {
	s := NewSim()
	assert.False(t, s.InjectEdge(3, true))
	assert.False(t, s.HasEvents())

	s.PinWatch(3, true)
	assert.True(t, s.InjectEdge(3, true))
	ev, ok := s.PopEvent()
	require.True(t, ok)
	assert.Equal(t, KindPin, ev.Kind)
	assert.Equal(t, 3, ev.Device)
	assert.True(t, ev.High())
	assert.True(t, s.Level(3))
}

func TestSimTruncatesCaptureTime(t *testing.T) {
	s := NewSim(WithTimestampBits(8))
	s.PinWatch(1, true)
	s.Advance(0x1FF)
	s.InjectEdge(1, false)

	ev, ok := s.PopEvent()
	require.True(t, ok)
	assert.Equal(t, uint32(0xFF), ev.Time)
}

func TestSimSerialSplitsIntoEvents(t *testing.T) {
	s := NewSim()
	n := s.InjectSerial(2, []byte("hello world"))
	assert.Equal(t, 2, n)

	first, _ := s.PopEvent()
	second, _ := s.PopEvent()
	assert.Equal(t, "hello wo", string(first.Data()))
	assert.Equal(t, "rld", string(second.Data()))
	assert.Equal(t, 2, second.Device)
}

func TestSimConsoleDevice(t *testing.T) {
	s := NewSim(WithConsoleDevice(7))
	s.InjectConsole("x")
	ev, _ := s.PopEvent()
	assert.Equal(t, 7, ev.Device)
}

func TestSimScheduledEdgesReleaseOnAdvance(t *testing.T) {
	s := NewSim()
	s.PinWatch(4, true)
	s.ScheduleEdge(100, 4, true)
	s.ScheduleEdge(50, 4, false)

	s.Advance(60)
	ev, ok := s.PopEvent()
	require.True(t, ok)
	assert.Equal(t, uint32(50), ev.Time, "capture time is the scheduled tick, not the release tick")
	assert.False(t, ev.High())
	assert.False(t, s.HasEvents())

	at, ok := s.NextScheduled()
	require.True(t, ok)
	assert.Equal(t, int64(100), at)
}

func TestSimSleepWakesAtNextScheduledEvent(t *testing.T) {
	s := NewSim()
	s.PinWatch(1, true)
	s.ScheduleEdge(30, 1, true)

	s.Sleep(1000)
	assert.Equal(t, int64(30), s.Now())
	assert.True(t, s.HasEvents())

	s.Sleep(10)
	assert.Equal(t, int64(30), s.Now(), "pending events cut a sleep short")
	assert.Equal(t, []int64{1000, 10}, s.Sleeps())
}

func TestSimSleepAdvancesFullBudget(t *testing.T) {
	s := NewSim()
	s.Sleep(250)
	assert.Equal(t, int64(250), s.Now())
}

func TestSimBusyTransitions(t *testing.T) {
	s := NewSim()
	s.SetBusy(true)
	s.SetBusy(true)
	s.SetBusy(false)
	assert.False(t, s.Busy())
	assert.Equal(t, 2, s.BusyChanges())
}

func TestSimResetDisarmsAndDiscards(t *testing.T) {
	s := NewSim()
	s.PinWatch(1, true)
	s.PinWatch(2, true)
	s.InjectEdge(1, true)
	s.ScheduleEdge(10, 2, true)

	assert.Equal(t, []int{1, 2}, s.ArmedPins())
	s.Reset()
	assert.Empty(t, s.ArmedPins())
	assert.False(t, s.HasEvents())
	_, ok := s.NextScheduled()
	assert.False(t, ok)
	assert.Equal(t, 1, s.Resets())
}

func TestSimFlags(t *testing.T) {
	s := NewSim()
	s.Reserve(5, "SPI1")
	assert.Equal(t, "SPI1", s.ReservedBy(5))
	assert.Equal(t, "", s.ReservedBy(6))

	s.SetTransmitPending(true)
	s.SetStayAwake(true)
	assert.True(t, s.HasTransmitData())
	assert.True(t, s.MustStayAwake())
}

func TestManualClockMonotonic(t *testing.T) {
	c := NewManualClock(10)
	assert.Equal(t, int64(15), c.Advance(5))
	c.Advance(-3)
	assert.Equal(t, int64(15), c.Now())
	c.Set(12)
	assert.Equal(t, int64(15), c.Now())
	c.Set(40)
	assert.Equal(t, int64(40), c.Now())
}
