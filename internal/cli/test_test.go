package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

const passingScenario = `name: one_shot
description: a timeout fires once
setup:
  timers:
    - callback: ping
      interval: 10
steps:
  - advance: 10
assertions:
  - type: trace_count
    callback: ping
    count: 1
`

const failingScenario = `name: never_fires
description: expects a call that never happens
setup:
  timers:
    - callback: ping
      interval: 100
steps:
  - advance: 10
assertions:
  - type: trace_count
    callback: ping
    count: 1
`

func testCmd(t *testing.T, fs afero.Fs, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format, Fs: fs})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func memScenarios(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, "/scenarios/"+name, []byte(body), 0o644))
	}
	return fs
}

func TestTestCommandHarnessScenariosMatchGolden(t *testing.T) {
	out, err := testCmd(t, afero.NewOsFs(), "text", harnessScenarios, "--golden", harnessGolden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ interval_refire")
	assert.Contains(t, out, "✓ debounce_collapse")
	assert.Contains(t, out, "Test Summary: 6 passed, 0 failed, 6 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := testCmd(t, afero.NewOsFs(), "text", harnessScenarios, "--filter", "*_coalesce")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ serial_coalesce")
	assert.NotContains(t, out, "interval_refire")
	assert.Contains(t, out, "1 total")
}

func TestTestCommandFailure(t *testing.T) {
	fs := memScenarios(t, map[string]string{
		"a.yaml": passingScenario,
		"b.yaml": failingScenario,
	})

	out, err := testCmd(t, fs, "text", "/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ one_shot")
	assert.Contains(t, out, "✗ never_fires")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandLoadError(t *testing.T) {
	fs := memScenarios(t, map[string]string{"broken.yaml": "name: [unterminated"})

	out, err := testCmd(t, fs, "text", "/scenarios")
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "load error")
}

func TestTestCommandJSON(t *testing.T) {
	fs := memScenarios(t, map[string]string{
		"a.yaml": passingScenario,
		"b.yaml": failingScenario,
	})

	out, err := testCmd(t, fs, "json", "/scenarios")
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.True(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[1].Errors)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	fs := memScenarios(t, map[string]string{"a.yaml": passingScenario})

	_, err := testCmd(t, fs, "text", "/scenarios", "--golden", "/golden", "--update")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/golden/one_shot.golden")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"one_shot"`)

	out, err := testCmd(t, fs, "text", "/scenarios", "--golden", "/golden")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ one_shot")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	fs := memScenarios(t, map[string]string{"a.yaml": passingScenario})
	require.NoError(t, afero.WriteFile(fs, "/golden/one_shot.golden", []byte(`{"scenario_name":"other"}`), 0o644))

	out, err := testCmd(t, fs, "text", "/scenarios", "--golden", "/golden")
	require.Error(t, err)
	assert.Contains(t, out, "does not match")
}

func TestTestCommandMissingGolden(t *testing.T) {
	fs := memScenarios(t, map[string]string{"a.yaml": passingScenario})

	out, err := testCmd(t, fs, "text", "/scenarios", "--golden", "/golden")
	require.Error(t, err)
	assert.Contains(t, out, "read golden file")
}

func TestTestCommandEmptyDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/scenarios", 0o755))

	out, err := testCmd(t, fs, "text", "/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandErrors(t *testing.T) {
	fs := memScenarios(t, map[string]string{"a.yaml": passingScenario})
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing directory", []string{"/nope"}, "scenarios directory not found"},
		{"update without golden", []string{"/scenarios", "--update"}, "--update needs --golden"},
		{"bad filter", []string{"/scenarios", "--filter", "["}, "invalid filter pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testCmd(t, fs, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
