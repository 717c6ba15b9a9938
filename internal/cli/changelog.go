package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/changelog"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/output"
	"github.com/ariel-frischer/bumpkit/internal/release"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Generate, view and check package changelogs",
	Long: `Work with the Keep-a-Changelog CHANGELOG.md file of each package.

'bumpkit apply' writes release entries automatically; these commands build
entries from git history, display them, and validate existing files.`,
}

var (
	clGenFrom    string
	clGenTo      string
	clGenVersion string
	clGenWrite   bool
)

var changelogGenerateCmd = &cobra.Command{
	Use:   "generate <package>",
	Short: "Build a changelog block from commit history",
	Long: `Build the changelog block of one package from the Conventional Commits in
<from>..<to> that touch its directory.

Without --write the block is printed. With --write it is merged into the
package CHANGELOG.md, replacing an existing block for the same version.`,
	Example: `  bumpkit changelog generate @acme/api --from v1.2.0
  bumpkit changelog generate @acme/api --from v1.2.0 --version 1.3.0 --write`,
	Args: cobra.ExactArgs(1),
	RunE: runChangelogGenerate,
}

var (
	clViewLast    int
	clViewPlain   bool
	clViewSummary bool
)

// latestVersion selects the newest released block in 'changelog view'.
const latestVersion = "latest"

var changelogViewCmd = &cobra.Command{
	Use:   "view <package> [version]",
	Short: "Display changelog entries of a package",
	Long: `Display changelog entries of a package.

Without a version the most recent entries across all versions are shown.
The version "latest" selects the newest released block, skipping Unreleased.
--summary prints one line per entry.`,
	Example: `  bumpkit changelog view @acme/api            # 5 most recent entries
  bumpkit changelog view @acme/api 1.3.0      # one version
  bumpkit changelog view @acme/api latest     # newest release
  bumpkit changelog view @acme/api --summary --last 20`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChangelogView,
}

var changelogCheckCmd = &cobra.Command{
	Use:   "check [package...]",
	Short: "Validate package changelogs",
	Long: `Parse and validate CHANGELOG.md files: version headers must be unique,
valid SemVer and carry dates, and at most one Unreleased block may exist.

Packages without a changelog are skipped. Exits with status 1 when any file
is invalid.`,
	RunE: runChangelogCheck,
}

func init() {
	changelogCmd.GroupID = GroupInspect
	rootCmd.AddCommand(changelogCmd)
	changelogCmd.AddCommand(changelogGenerateCmd, changelogViewCmd, changelogCheckCmd)

	changelogGenerateCmd.Flags().StringVar(&clGenFrom, "from", "", "Exclusive start revision (default: full history)")
	changelogGenerateCmd.Flags().StringVar(&clGenTo, "to", "HEAD", "End revision")
	changelogGenerateCmd.Flags().StringVar(&clGenVersion, "version", "", "Version header (default: current package version)")
	changelogGenerateCmd.Flags().BoolVarP(&clGenWrite, "write", "w", false, "Merge the block into the package CHANGELOG.md")

	changelogViewCmd.Flags().IntVar(&clViewLast, "last", 5, "Number of entries to show")
	changelogViewCmd.Flags().BoolVar(&clViewPlain, "plain", false, "Plain text output (no colors/icons)")
	changelogViewCmd.Flags().BoolVar(&clViewSummary, "summary", false, "One line per entry")
}

func runChangelogGenerate(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	res, err := s.engine.ChangelogFromHistory(cmd.Context(), release.HistoryOptions{
		Package:  args[0],
		From:     clGenFrom,
		To:       clGenTo,
		Version:  clGenVersion,
		RepoRoot: s.repoRoot(),
		Write:    clGenWrite,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if clGenWrite {
		output.PrintSuccess(out, "wrote "+relPath(s.engine.Root(), res.Path))
		return nil
	}
	fmt.Fprint(out, changelog.RenderReleaseString(&res.Changelog.Releases[0], s.engine.ChangelogOptions()))
	return nil
}

// loadPackageChangelog loads the CHANGELOG.md of the named package.
func loadPackageChangelog(cmd *cobra.Command, s *session, name string) (*changelog.Changelog, error) {
	state, err := s.engine.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	pkg, ok := state.Workspace.Package(name)
	if !ok {
		return nil, &release.PackageNotFoundError{Name: name}
	}
	return changelog.Load(changelogPath(pkg), s.engine.ChangelogOptions())
}

func changelogPath(pkg *workspace.Package) string {
	return filepath.Join(pkg.Dir, changelog.FileName)
}

func runChangelogView(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	log, err := loadPackageChangelog(cmd, s, args[0])
	if err != nil {
		return err
	}

	opts := changelog.FormatOptions{Plain: clViewPlain}
	switch {
	case len(args) == 2 && args[1] == latestVersion:
		return showLatest(log, cmd, opts)
	case len(args) == 2:
		return showVersion(log, args[1], cmd, opts)
	case clViewSummary:
		return showSummaries(log, clViewLast, cmd, opts)
	default:
		return showLastEntries(log, clViewLast, cmd, opts)
	}
}

func showLatest(log *changelog.Changelog, cmd *cobra.Command, opts changelog.FormatOptions) error {
	r, ok := log.Latest()
	if !ok {
		fmt.Fprintln(cmd.ErrOrStderr(), "No released versions found.")
		return NewExitError(ExitValidationFailed)
	}
	if clViewSummary {
		printSummaries(cmd.OutOrStdout(), r.Records(), opts)
		return nil
	}
	return changelog.FormatRelease(r, cmd.OutOrStdout(), opts)
}

func showSummaries(log *changelog.Changelog, n int, cmd *cobra.Command, opts changelog.FormatOptions) error {
	entries := log.LastN(n)
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changelog entries found.")
		return nil
	}
	printSummaries(cmd.OutOrStdout(), entries, opts)
	return nil
}

// printSummaries writes "<version>  <summary>" per record.
func printSummaries(w io.Writer, records []changelog.Record, opts changelog.FormatOptions) {
	width := 0
	for _, r := range records {
		width = max(width, len(r.Version))
	}
	for _, r := range records {
		fmt.Fprintf(w, "%-*s  %s\n", width, r.Version, changelog.FormatSummary(r, opts))
	}
}

func showVersion(log *changelog.Changelog, version string, cmd *cobra.Command, opts changelog.FormatOptions) error {
	r, err := log.Release(version)
	if err != nil {
		var notFound *changelog.VersionNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Version %q not found.\n\n", version)
			fmt.Fprintf(cmd.ErrOrStderr(), "Available versions:\n")
			for _, ver := range log.Versions() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", ver)
			}
			return NewExitError(ExitValidationFailed)
		}
		return fmt.Errorf("getting version: %w", err)
	}

	return changelog.FormatRelease(r, cmd.OutOrStdout(), opts)
}

func showLastEntries(log *changelog.Changelog, n int, cmd *cobra.Command, opts changelog.FormatOptions) error {
	entries := log.LastN(n)
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changelog entries found.")
		return nil
	}

	if err := changelog.FormatTerminal(entries, cmd.OutOrStdout(), opts); err != nil {
		return fmt.Errorf("formatting entries: %w", err)
	}

	total := len(log.Records())
	if total > len(entries) {
		fmt.Fprintf(cmd.OutOrStdout(), "\n(%d of %d entries shown. Use --last %d to see all)\n",
			len(entries), total, total)
	}
	return nil
}

func runChangelogCheck(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	state, err := s.engine.Load(cmd.Context())
	if err != nil {
		return err
	}

	pkgs := state.Workspace.Packages
	if len(args) > 0 {
		pkgs = pkgs[:0:0]
		for _, name := range args {
			pkg, ok := state.Workspace.Package(name)
			if !ok {
				return &release.PackageNotFoundError{Name: name}
			}
			pkgs = append(pkgs, pkg)
		}
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, pkg := range pkgs {
		if !checkChangelog(out, pkg, s) {
			invalid++
		}
	}
	if invalid > 0 {
		fmt.Fprintf(out, "\n%d invalid changelog(s)\n", invalid)
		return NewExitError(ExitValidationFailed)
	}
	return nil
}

// checkChangelog reports on one package and returns false when its changelog
// is invalid.
func checkChangelog(out io.Writer, pkg *workspace.Package, s *session) bool {
	log, err := changelog.Load(changelogPath(pkg), s.engine.ChangelogOptions())
	if errors.Is(err, clierrors.ErrNotFound) {
		fmt.Fprintf(out, "%s %s\n", output.Dim("-"), output.Dim(pkg.Name+": no changelog"))
		return true
	}
	if err == nil {
		err = changelog.Validate(log)
	}
	if err != nil {
		output.PrintWarning(out, fmt.Sprintf("%s: %v", pkg.Name, err))
		return false
	}
	output.PrintSuccess(out, fmt.Sprintf("%s: %d release(s)", pkg.Name, len(log.Releases)))
	return true
}
