package testutil

import (
	"strings"
	"sync"
)

// Console records console input and reports.
type Console struct {
	mu      sync.Mutex
	input   strings.Builder
	reports []string
}

// PushChar implements engine.Console.
func (c *Console) PushChar(ch byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.WriteByte(ch)
}

// Report implements engine.Console.
func (c *Console) Report(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, msg)
}

// Input returns every character pushed so far.
func (c *Console) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input.String()
}

// Reports returns the reported messages in order.
func (c *Console) Reports() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reports...)
}

// Streams records serial data pushed per device.
type Streams struct {
	mu     sync.Mutex
	pushes []Push
}

// Push is one recorded PushData call.
type Push struct {
	Device int
	Data   string
}

// PushData implements engine.StreamSink.
func (s *Streams) PushData(device int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, Push{Device: device, Data: string(data)})
}

// Pushes returns recorded pushes in order.
func (s *Streams) Pushes() []Push {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Push(nil), s.pushes...)
}

// Counter counts calls; it satisfies engine.Reclaimer and engine.OtherIdle.
type Counter struct {
	mu    sync.Mutex
	n     int
	Works bool // value returned by Idle
}

// Reclaim implements engine.Reclaimer.
func (c *Counter) Reclaim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

// Idle implements engine.OtherIdle.
func (c *Counter) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.Works
}

// Count returns the number of calls.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
