// Package script runs JavaScript programs on the scheduler.
//
// A Runtime is the scheduler's invoker, console and stream sink at once:
// callbacks created by setTimeout, setWatch and friends are goja
// functions wrapped in ir targets, console lines are queued as source
// text, and serial data is queued to onData handlers.
//
// Everything runs on the goroutine that steps the scheduler. Only
// Interrupt may be called from elsewhere.
package script
