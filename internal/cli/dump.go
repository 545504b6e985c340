package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/ir"
	"github.com/roach88/tickloop/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database string
	ID       string
	Config   string
}

// SnapshotsOptions holds flags for the snapshots command.
type SnapshotsOptions struct {
	*RootOptions
	Database string
	Prune    int
}

// SnapshotList is the snapshots command's result.
type SnapshotList struct {
	Pruned    int64                `json:"pruned,omitempty"`
	Snapshots []store.SnapshotInfo `json:"snapshots"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print a saved state as script",
		Long: `Print a saved snapshot as the setInterval, setTimeout and setWatch calls
that would recreate it. Without --id the newest snapshot is used.

Intervals are shown in milliseconds at the tick rate of --config.

Example:
  tickloop dump --db state.db
  tickloop dump --db state.db --id 01928c1e-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "snapshot ID (default: newest)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "board configuration giving the tick rate")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List or prune saved states",
		Long: `List the snapshots stored by save(), oldest first.

--prune N deletes all but the newest N snapshots before listing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(opts, cmd.Flags().Changed("prune"), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "keep only the newest N snapshots")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openExisting opens a database that must already exist; Open would
// otherwise create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	rate := engine.DefaultTickRate
	if opts.Config != "" {
		cfg, err := (&RunOptions{RootOptions: opts.RootOptions, Config: opts.Config}).loadConfig()
		if err != nil {
			_ = f.Error(CodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		rate = cfg.Rate()
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var snap *ir.Snapshot
	if opts.ID != "" {
		snap, err = st.ReadSnapshot(ctx, opts.ID)
	} else {
		snap, err = st.LoadSnapshot(ctx)
	}
	if err != nil {
		_ = f.Error(CodeStore, err.Error(), nil)
		if errors.Is(err, store.ErrNoSnapshot) {
			return WrapExitError(ExitFailure, "no snapshot", err)
		}
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	if opts.Format == "json" {
		return f.Success(snap)
	}
	f.VerboseLog("snapshot %s at tick %d", snap.ID, snap.Tick)
	return engine.WriteDump(f.Writer, *snap, rate)
}

func runSnapshots(opts *SnapshotsOptions, prune bool, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if prune && opts.Prune < 0 {
		return NewExitError(ExitCommandError, "--prune must not be negative")
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var result SnapshotList
	if prune {
		if result.Pruned, err = st.Prune(ctx, opts.Prune); err != nil {
			_ = f.Error(CodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to prune", err)
		}
	}
	if result.Snapshots, err = st.ListSnapshots(ctx); err != nil {
		_ = f.Error(CodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	if opts.Format == "json" {
		return f.Success(result)
	}

	w := f.Writer
	if prune {
		fmt.Fprintf(w, "pruned %d snapshot(s)\n", result.Pruned)
	}
	if len(result.Snapshots) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tTICK\tTIMERS\tWATCHES\tVERSION")
	for _, s := range result.Snapshots {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n", s.Seq, s.ID, s.Tick, s.Timers, s.Watches, s.EngineVersion)
	}
	return tw.Flush()
}
