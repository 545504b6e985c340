package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioGoldenTraces(t *testing.T) {
	fs := afero.NewOsFs()
	paths, err := FindScenarios(fs, "testdata/scenarios")
	require.NoError(t, err)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(fs, path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalTraceIsCanonical(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Tick: 5, Type: EventCall, Callback: "t", Args: []any{map[string]any{"time": int64(5), "pin": int64(1)}}},
		{Seq: 2, Tick: 5, Type: EventData, Device: 0, Data: "<&>"},
	}
	data, err := MarshalTrace("x", trace)
	require.NoError(t, err)

	assert.Equal(t,
		`{"scenario_name":"x","trace":[{"args":[{"pin":1,"time":5}],"callback":"t","seq":1,"tick":5,"type":"call"},{"data":"<&>","device":0,"seq":2,"tick":5,"type":"data"}]}`,
		string(data))
}

func TestMarshalTraceRejectsFloats(t *testing.T) {
	trace := []TraceEvent{{Seq: 1, Type: EventCall, Callback: "t", Args: []any{1.5}}}
	_, err := MarshalTrace("x", trace)
	assert.Error(t, err)
}
