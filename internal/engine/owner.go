package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ownerGuard pins table mutation to one goroutine. The first IdleStep
// binds it; afterwards a mutation from any other goroutine panics with a
// FOREIGN_GOROUTINE SchedulerError.
type ownerGuard struct {
	enabled bool
	id      atomic.Int64
}

func (g *ownerGuard) bind() {
	if g.enabled {
		g.id.CompareAndSwap(0, goid.Get())
	}
}

func (g *ownerGuard) check(op string) {
	if !g.enabled {
		return
	}
	owner := g.id.Load()
	if owner == 0 {
		return
	}
	if cur := goid.Get(); cur != owner {
		panic(&SchedulerError{
			Code:    ErrCodeForeignGoroutine,
			Message: fmt.Sprintf("%s called from goroutine %d, scheduler is owned by goroutine %d", op, cur, owner),
		})
	}
}
