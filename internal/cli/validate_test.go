package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validateCmd(t *testing.T, fs afero.Fs, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Fs: fs})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func configFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
	return fs
}

func TestValidateAcceptsConfigs(t *testing.T) {
	fs := configFs(t, map[string]string{
		"/board.cue":  "tick_rate: 1000\nmax_timers: 4\n",
		"/board.json": `{"event_buffer": 64}`,
	})

	out, err := validateCmd(t, fs, "text", "/board.cue", "/board.json")
	require.NoError(t, err)
	assert.Equal(t, "✓ 2 configuration file(s) valid\n", out)
}

func TestValidateEmptyFileIsValid(t *testing.T) {
	fs := configFs(t, map[string]string{"/empty.cue": ""})

	_, err := validateCmd(t, fs, "text", "/empty.cue")
	assert.NoError(t, err)
}

func TestValidateReportsPosition(t *testing.T) {
	fs := configFs(t, map[string]string{"/board.cue": "tick_rate: 1000\ntimestamp_bits: 40\n"})

	out, err := validateCmd(t, fs, "text", "/board.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "timestamp_bits")
}

func TestValidateReportsEveryFile(t *testing.T) {
	fs := configFs(t, map[string]string{
		"/a.cue": "event_buffer: 100\n",
		"/b.cue": "tick_rat: 5\n",
		"/c.cue": "",
	})

	out, err := validateCmd(t, fs, "text", "/a.cue", "/b.cue", "/c.cue")
	require.Error(t, err)
	assert.Contains(t, out, "event_buffer")
	assert.Contains(t, out, "tick_rat")
	assert.NotContains(t, out, "c.cue")
}

func TestValidateJSON(t *testing.T) {
	fs := configFs(t, map[string]string{"/board.cue": "sleep_cap_ms: 250\n"})

	out, err := validateCmd(t, fs, "json", "/board.cue")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Contains(t, resp.Data.Configs, "/board.cue")
	assert.Equal(t, 250.0, resp.Data.Configs["/board.cue"].SleepCapMS)
}

func TestValidateJSONInvalid(t *testing.T) {
	fs := configFs(t, map[string]string{"/board.cue": "owner_check: \"yes\"\n"})

	out, err := validateCmd(t, fs, "json", "/board.cue")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeConfig, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := validateCmd(t, afero.NewMemMapFs(), "text", "/missing.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot read configuration")
}

func TestValidateRequiresArgument(t *testing.T) {
	_, err := validateCmd(t, afero.NewMemMapFs(), "text")
	assert.Error(t, err)
}
