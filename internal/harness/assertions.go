package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/tickloop/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] @%d %s\n", ev.Seq, ev.Tick, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch ev.Type {
	case EventCall:
		return fmt.Sprintf("call %s %v", ev.Callback, ev.Args)
	case EventData:
		return fmt.Sprintf("data device=%d %q", ev.Device, ev.Data)
	default:
		return fmt.Sprintf("%s %q", ev.Type, ev.Message)
	}
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertReportContains:
			err = assertReportContains(result.Trace, a)
		case AssertSerialData:
			err = assertSerialData(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertTraceContains looks for a call to the callback whose first
// argument contains every expected field.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type != EventCall || ev.Callback != a.Callback {
			continue
		}
		if a.At != nil && ev.Tick != *a.At {
			continue
		}
		if matchArgs(ev.Args, a.Args) {
			return nil
		}
	}

	expected := fmt.Sprintf("call %s with args %v", a.Callback, a.Args)
	if a.At != nil {
		expected += fmt.Sprintf(" at tick %d", *a.At)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the first call of each callback appears in the
// given order. Other calls may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != EventCall {
			continue
		}
		if _, seen := positions[ev.Callback]; !seen {
			positions[ev.Callback] = i + 1
		}
	}

	for _, cb := range a.Callbacks {
		if positions[cb] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all callbacks called: %v", a.Callbacks),
				Actual:   fmt.Sprintf("missing callback: %s", cb),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Callbacks); i++ {
		prev, curr := a.Callbacks[i-1], a.Callbacks[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("callbacks in order: %v", a.Callbacks),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventCall && ev.Callback == a.Callback {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Callback),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertReportContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == EventReport && strings.Contains(ev.Message, a.Message) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertReportContains,
		Expected: fmt.Sprintf("a report containing %q", a.Message),
		Actual:   "no such report",
		Trace:    trace,
	}
}

func assertSerialData(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == EventData && ev.Device == a.Device && ev.Data == a.Data {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSerialData,
		Expected: fmt.Sprintf("%q pushed on device %d", a.Data, a.Device),
		Actual:   "no such push",
		Trace:    trace,
	}
}

func assertFinalState(result *Result, a Assertion) error {
	check := func(what string, want *int, got int) error {
		if want == nil || *want == got {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d %s", *want, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
		}
	}
	if err := check("timers", a.Timers, result.State.Timers); err != nil {
		return err
	}
	if err := check("watches", a.Watches, result.State.Watches); err != nil {
		return err
	}
	return check("queued calls", a.Queue, result.State.Queue)
}

// matchArgs checks the first argument is an object holding every expected
// field. No expected fields always matches.
func matchArgs(args []any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	if len(args) == 0 {
		return false
	}
	actual, ok := args[0].(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a traced value with a YAML-decoded one. Both sides
// go through the IR so YAML ints and traced int64s compare equal.
func valuesEqual(actual, expected any) bool {
	a, errA := ir.FromGo(actual)
	e, errE := ir.FromGo(expected)
	if errA != nil || errE != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return reflect.DeepEqual(a, e)
}
