package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Tick: 10, Type: EventCall, Callback: "a", Args: []any{map[string]any{"time": int64(10)}}},
		{Seq: 2, Tick: 10, Type: EventReport, Message: "Uncaught injected failure"},
		{Seq: 3, Tick: 20, Type: EventCall, Callback: "b", Args: []any{map[string]any{"time": int64(20), "pin": int64(3), "state": true}}},
		{Seq: 4, Tick: 20, Type: EventData, Device: 1, Data: "hi"},
		{Seq: 5, Tick: 30, Type: EventCall, Callback: "a", Args: []any{map[string]any{"time": int64(30)}}},
	}
}

func tick(v int64) *int64 { return &v }
func count(v int) *int     { return &v }

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"callback only", Assertion{Callback: "b"}, true},
		{"yaml int matches int64", Assertion{Callback: "b", Args: map[string]any{"pin": 3, "state": true}}, true},
		{"wrong value", Assertion{Callback: "b", Args: map[string]any{"pin": 4}}, false},
		{"missing key", Assertion{Callback: "a", Args: map[string]any{"pin": 3}}, false},
		{"at tick", Assertion{Callback: "a", At: tick(30), Args: map[string]any{"time": 30}}, true},
		{"wrong tick", Assertion{Callback: "a", At: tick(20)}, false},
		{"absent callback", Assertion{Callback: "z"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.a)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Callbacks: []string{"a", "b"}}))

	err := assertTraceOrder(trace, Assertion{Callbacks: []string{"b", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b (pos 3) should be before a (pos 1)")

	err = assertTraceOrder(trace, Assertion{Callbacks: []string{"a", "c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing callback: c")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Callback: "a", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Callback: "z", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Callback: "b", Count: 2}))
}

func TestAssertReportAndSerial(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertReportContains(trace, Assertion{Message: "injected"}))
	assert.Error(t, assertReportContains(trace, Assertion{Message: "Interrupted"}))

	assert.NoError(t, assertSerialData(trace, Assertion{Device: 1, Data: "hi"}))
	assert.Error(t, assertSerialData(trace, Assertion{Device: 2, Data: "hi"}))
}

func TestAssertFinalState(t *testing.T) {
	result := &Result{State: FinalState{Timers: 2, Watches: 1}}

	assert.NoError(t, assertFinalState(result, Assertion{Timers: count(2)}))
	assert.NoError(t, assertFinalState(result, Assertion{Watches: count(1), Queue: count(0)}))

	err := assertFinalState(result, Assertion{Timers: count(2), Watches: count(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 0 watches")
	assert.Contains(t, err.Error(), "Actual: 1 watches")
}

func TestAssertionErrorIncludesTrace(t *testing.T) {
	err := assertTraceCount(sampleTrace(), Assertion{Callback: "a", Count: 5})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[2] @10 report \"Uncaught injected failure\"")
	assert.Contains(t, msg, "[4] @20 data device=1 \"hi\"")
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Callback: "a", Count: 2},
		{Type: AssertTraceCount, Callback: "a", Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
