package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/output"
	"github.com/ariel-frischer/bumpkit/internal/progress"
	"github.com/ariel-frischer/bumpkit/internal/release"
)

var (
	applySnapshotFlag       bool
	applyDryRunFlag         bool
	applyFailOnConflictFlag bool
	applyNoProgressFlag     bool
	applyFormatFlag         string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending changesets to the workspace",
	Long: `Resolve pending changesets, rewrite every affected package.json and
write changelog entries.

Manifests are backed up first and restored if any write fails. Applied
changesets are moved to .changesets/archive/ with release metadata, except
for snapshot releases which leave them pending.

Exit codes:
  0  success
  1  invalid changesets, configuration or conflicts (with --fail-on-conflict)
  2  apply failed, every manifest restored
  3  apply failed, rollback incomplete (see 'bumpkit backup restore')`,
	Example: `  bumpkit apply
  bumpkit apply --dry-run
  bumpkit apply --snapshot
  bumpkit apply --fail-on-conflict`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.GroupID = GroupRelease
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applySnapshotFlag, "snapshot", false, "Publish snapshot versions and keep changesets pending")
	applyCmd.Flags().BoolVarP(&applyDryRunFlag, "dry-run", "n", false, "Resolve and report without writing")
	applyCmd.Flags().BoolVar(&applyFailOnConflictFlag, "fail-on-conflict", false, "Abort when resolution reports conflicts")
	applyCmd.Flags().BoolVar(&applyNoProgressFlag, "no-progress", false, "Disable stage progress output")
	applyCmd.Flags().StringVarP(&applyFormatFlag, "format", "f", FormatText, "Output format: text, json, yaml")
}

func runApply(cmd *cobra.Command, args []string) error {
	if err := validateFormat(applyFormatFlag, FormatText, FormatJSON, FormatYAML); err != nil {
		return err
	}

	var opts []release.Option
	if !applyNoProgressFlag && applyFormatFlag == FormatText {
		opts = append(opts, release.WithObserver(progress.NewDisplay(cmd.ErrOrStderr(), progress.DetectTerminalCapabilities())))
	}
	s, err := newSession(cmd, opts...)
	if err != nil {
		return err
	}

	res, err := s.engine.Apply(cmd.Context(), release.ApplyOptions{
		Snapshot:       applySnapshotFlag,
		DryRun:         applyDryRunFlag,
		FailOnConflict: applyFailOnConflictFlag,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if applyFormatFlag != FormatText {
		return writeStructured(out, applyFormatFlag, res)
	}
	renderApplyResult(out, s.engine.Root(), res)
	if len(res.ChangelogErrors) > 0 {
		return NewExitError(ExitRuntimeError)
	}
	return nil
}

func renderApplyResult(w io.Writer, root string, res *release.ApplyResult) {
	fmt.Fprintln(w)
	renderPlan(w, res.Plan)

	if res.DryRun {
		output.PrintDryRun(w, "no files written")
		return
	}
	if res.Plan.Empty() && len(res.Archived) == 0 {
		fmt.Fprintln(w, "Nothing to release.")
		return
	}

	for _, path := range res.Written {
		output.PrintSuccess(w, "updated "+relPath(root, path))
	}
	for _, path := range res.Changelogs {
		output.PrintSuccess(w, "wrote "+relPath(root, path))
	}
	for _, pe := range res.ChangelogErrors {
		output.PrintWarning(w, fmt.Sprintf("changelog for %s: %v", pe.Package, pe.Err))
	}
	for _, id := range res.Archived {
		output.PrintSuccess(w, "archived "+id)
	}
	if res.Snapshot {
		fmt.Fprintln(w, output.Dim("snapshot release: changesets left pending"))
	}
	if res.BackupKept {
		fmt.Fprintln(w, output.Dim("backup kept: "+res.BackupID))
	}
	fmt.Fprintf(w, "\nReleased %d package(s) in %s\n", len(res.Plan.Updates), res.Duration.Round(time.Millisecond))
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
