package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRunRecordsTimerCalls(t *testing.T) {
	s := mustParse(t, minimalScenario)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	calls := result.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "t", calls[0].Callback)
	assert.EqualValues(t, 5, calls[0].Tick)
	assert.Equal(t, []any{map[string]any{"time": int64(5)}}, calls[0].Args)
	assert.Equal(t, 0, result.State.Timers)
}

func TestRunReportsAssertionFailures(t *testing.T) {
	s := mustParse(t, `
name: wrong
description: expects the wrong count
setup:
  timers:
    - {callback: t, interval: 5, recurring: true}
steps:
  - advance: 5
  - advance: 5
assertions:
  - {type: trace_count, callback: t, count: 3}
  - {type: final_state, timers: 0}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "3 calls of t")
	assert.Contains(t, result.Errors[0], "2 calls")
	assert.Contains(t, result.Errors[1], "0 timers")
}

func TestRunWatchFailureRemovesRecurringWatch(t *testing.T) {
	s := mustParse(t, `
name: bad_watch
description: a failing recurring watch is removed
setup:
  watches:
    - {callback: w, pin: 2, repeat: true, fail: true}
steps:
  - edge: {pin: 2, high: true}
  - advance: 1
  - edge: {pin: 2, high: false}
  - advance: 1
assertions:
  - {type: trace_count, callback: w, count: 1}
  - {type: report_contains, message: "Error processing Watch - removing it."}
  - {type: final_state, watches: 0}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunCancelAndRemoveSteps(t *testing.T) {
	s := mustParse(t, `
name: cancel_remove
description: scenario steps cancel timers and remove watches by callback name
setup:
  timers:
    - {callback: t, interval: 10}
  watches:
    - {callback: w, pin: 1, repeat: true}
steps:
  - cancel: t
  - remove: w
  - advance: 20
assertions:
  - {type: trace_count, callback: t, count: 0}
  - {type: final_state, timers: 0, watches: 0}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunUnknownCancelIsAnError(t *testing.T) {
	s := mustParse(t, `
name: bad_cancel
description: cancel names a timer setup never made
steps:
  - cancel: ghost
assertions:
  - {type: final_state, timers: 0}
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no setup timer "ghost"`)
}

func TestRunConfigOverrides(t *testing.T) {
	s := mustParse(t, `
name: capped
description: a one-timer table rejects the second setup timer
config:
  max_timers: 1
setup:
  timers:
    - {callback: a, interval: 1}
    - {callback: b, interval: 1}
steps:
  - advance: 1
assertions:
  - {type: final_state, timers: 0}
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timers[1]")
}

func TestRunInvalidConfig(t *testing.T) {
	s := mustParse(t, `
name: bad_config
description: unknown config field
config:
  warp_speed: 9
steps:
  - advance: 1
assertions:
  - {type: final_state, timers: 0}
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestRunSerialByteSize(t *testing.T) {
	s := mustParse(t, `
name: bytesize
description: serial bytes are masked to the configured size
config:
  serial_bytesize: {"1": 5}
steps:
  - serial: {device: 1, data: "a"}
  - advance: 1
assertions:
  - {type: serial_data, device: 1, data: "\x01"}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunScheduledSerial(t *testing.T) {
	s := mustParse(t, `
name: scheduled_serial
description: serial data scheduled for later arrives when time reaches it
steps:
  - serial: {device: 3, data: "late", at: 50}
  - advance: 40
  - advance: 20
assertions:
  - {type: serial_data, device: 3, data: late}
`)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.EqualValues(t, 60, result.Trace[0].Tick)
}
