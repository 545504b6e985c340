// Package engine implements the cooperative timer/watch/event scheduler.
//
// ARCHITECTURE:
//
// Single consumer:
// One goroutine owns the scheduler and calls IdleStep forever. Hardware
// events arrive from interrupt context through a bounded SPSC ring (see
// package hw); nothing else crosses goroutines except the interrupt flag.
//
// One IdleStep:
//  1. Drain raw events (console chars, serial data, pin edges)
//  2. elapsed = now - lastStep
//  3. StepTimers(elapsed) -> minRemaining
//  4. Poll other subsystems
//  5. Update the idle streak
//  6. DrainQueue unless an interrupt is pending
//  7. Report interrupted-during-drain
//  8. One maintenance request (reset/save/load)
//  9. Reclaim memory on the first idle step with spare time
//  10. Sleep min(minRemaining, cap) once idle long enough
//
// Tables:
// Timers and watches live in generational arenas. A debounce timer links
// back to its watch by handle and the watch owns the timer; both links
// are validated before use, so a removed entry is never dereferenced.
//
// Mutation during a sweep:
// The timer sweep ranges over a snapshot of handles. Cancelling a timer
// while the sweep runs aborts it; timers it did not reach are charged the
// elapsed time and evaluated on the next step.
//
// Known hazard: DrainQueue has no iteration bound. A callback that always
// re-queues work starves event draining and sleep.
package engine
