package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates snapshot IDs "snap-0001", "snap-0002", ...
//
// Store tests use it in place of UUIDv7 so saved rows are byte-identical
// across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. An empty prefix means "snap".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "snap"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Current returns how many IDs were generated.
func (g *SequentialIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
