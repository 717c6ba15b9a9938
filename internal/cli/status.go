package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/release"
	"github.com/ariel-frischer/bumpkit/internal/watch"
)

var (
	statusFormatFlag   string
	statusSnapshotFlag bool
	statusWatchFlag    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changesets and the release plan",
	Long: `Show pending changesets and what 'bumpkit apply' would do right now.

Nothing is written. With --watch the report is re-rendered whenever a
changeset or a workspace manifest changes.`,
	Example: `  bumpkit status
  bumpkit status --format json
  bumpkit status --snapshot
  bumpkit status --watch`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.GroupID = GroupRelease
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormatFlag, "format", "f", FormatText, "Output format: text, json, yaml")
	statusCmd.Flags().BoolVar(&statusSnapshotFlag, "snapshot", false, "Resolve as a snapshot release")
	statusCmd.Flags().BoolVarP(&statusWatchFlag, "watch", "w", false, "Re-render on changes until interrupted")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := validateFormat(statusFormatFlag, FormatText, FormatJSON, FormatYAML); err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	opts := release.StatusOptions{Snapshot: statusSnapshotFlag}
	st, err := s.engine.Status(ctx, opts)
	if err != nil {
		return err
	}
	if err := printStatus(cmd.OutOrStdout(), st); err != nil {
		return err
	}
	if !statusWatchFlag {
		return nil
	}
	return watchStatus(ctx, cmd.OutOrStdout(), s, opts)
}

func printStatus(w io.Writer, st *release.Status) error {
	if statusFormatFlag == FormatText {
		renderStatus(w, st)
		return nil
	}
	return writeStructured(w, statusFormatFlag, st)
}

// watchStatus re-renders status on every change batch until ctx is done.
// Errors while re-resolving are reported and watching continues.
func watchStatus(ctx context.Context, w io.Writer, s *session, opts release.StatusOptions) error {
	state, err := s.engine.Load(ctx)
	if err != nil {
		return err
	}
	manifests := make([]string, 0, len(state.Workspace.Packages))
	for _, pkg := range state.Workspace.Packages {
		manifests = append(manifests, pkg.ManifestPath)
	}

	watcher, err := watch.New(s.engine.Root(), manifests,
		watch.WithDebounce(s.cfg.Watch.Debounce),
		watch.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-watcher.Changes:
			if !ok {
				return nil
			}
			s.logger.Debug("workspace changed", slog.Int("paths", len(batch.Paths)))
			st, err := s.engine.Status(ctx, opts)
			if err != nil {
				fmt.Fprintf(w, "status failed: %v\n", err)
				continue
			}
			fmt.Fprintln(w)
			if err := printStatus(w, st); err != nil {
				return err
			}
		}
	}
}
