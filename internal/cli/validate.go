package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tickloop/internal/config"
)

// ConfigIssue is one invalid configuration file.
type ConfigIssue struct {
	File    string `json:"file"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                      `json:"valid"`
	Configs map[string]*config.Config `json:"configs,omitempty"`
	Errors  []ConfigIssue             `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ %d configuration file(s) valid", len(r.Configs))
	}
	var b strings.Builder
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(&b, "✗ %s:%d:%d: %s: %s\n", e.File, e.Line, e.Column, e.Field, e.Message)
		} else if e.Field != "" {
			fmt.Fprintf(&b, "✗ %s: %s: %s\n", e.File, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "✗ %s: %s\n", e.File, e.Message)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>...",
		Short: "Validate board configuration files",
		Long: `Validate board configuration files against the configuration schema.

Files are CUE or JSON. Unknown fields, wrong types and out-of-range values
are reported with their position. Nothing is run.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	fs := opts.fs()

	result := ValidationResult{Configs: make(map[string]*config.Config, len(paths))}
	for _, path := range paths {
		f.VerboseLog("validating %s", path)
		cfg, err := config.Load(fs, path)
		if err == nil {
			result.Configs[path] = cfg
			continue
		}

		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			_ = f.Error(CodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot read configuration", err)
		}
		issue := ConfigIssue{File: path, Field: cfgErr.Field, Message: cfgErr.Message}
		if cfgErr.Pos.IsValid() {
			issue.File = cfgErr.Pos.Filename()
			issue.Line = cfgErr.Pos.Line()
			issue.Column = cfgErr.Pos.Column()
		}
		result.Errors = append(result.Errors, issue)
	}

	if len(result.Errors) > 0 {
		result.Configs = nil
		if opts.Format == "json" {
			_ = f.Error(CodeConfig, fmt.Sprintf("%d invalid configuration file(s)", len(result.Errors)), result.Errors)
		} else {
			fmt.Fprintln(f.Writer, result.String())
		}
		return NewExitError(ExitFailure, "configuration invalid")
	}

	result.Valid = true
	if opts.Verbose && opts.Format != "json" {
		for _, path := range paths {
			c := result.Configs[path]
			f.VerboseLog("%s: tick_rate=%d timestamp_bits=%d event_buffer=%d", path, c.TickRate, c.TimestampBits, c.EventBuffer)
		}
	}
	return f.Success(result)
}
