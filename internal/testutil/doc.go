// Package testutil provides deterministic collaborators for scheduler
// tests: a recording invoker, console and stream recorders, call
// counters and sequential snapshot IDs.
package testutil
