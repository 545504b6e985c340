// Package harness runs YAML scenarios against the scheduler.
//
// A scenario sets up timers, watches and queued calls with named
// recording callbacks, then drives a simulated board through steps:
// advancing virtual time, changing pin levels, receiving serial data,
// typing on the console, cancelling and interrupting. Every callback
// invocation, console report, serial push and console line is appended
// to a trace, which assertions inspect and golden files pin down.
//
//	name: debounce_collapse
//	description: a bouncing button fires once after it settles
//	setup:
//	  watches:
//	    - {callback: button, pin: 3, edge: rising, repeat: true, debounce: 20}
//	steps:
//	  - edge: {pin: 3, high: true, at: 10}
//	  - advance: 50
//	assertions:
//	  - {type: trace_count, callback: button, count: 1}
//
// Times are ticks; scenarios run at one tick per millisecond with
// sleeping disabled unless their config section says otherwise.
package harness
