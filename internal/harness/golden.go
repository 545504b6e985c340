package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tickloop/internal/ir"
)

// TraceSnapshot is what a golden file holds.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot into plain values for
// ir.MarshalCanonical, dropping empty fields.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"tick": ev.Tick,
			"type": ev.Type,
		}
		if ev.Callback != "" {
			m["callback"] = ev.Callback
		}
		if len(ev.Args) > 0 {
			m["args"] = ev.Args
		}
		if ev.Message != "" {
			m["message"] = ev.Message
		}
		if ev.Type == EventData {
			m["device"] = int64(ev.Device)
			m["data"] = ev.Data
		}
		traceList[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a trace as canonical JSON.
func MarshalTrace(name string, trace []TraceEvent) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: trace}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
