package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/output"
	"github.com/ariel-frischer/bumpkit/internal/release"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
)

var changesetCmd = &cobra.Command{
	Use:     "changeset",
	Aliases: []string{"cs"},
	Short:   "Create, list and inspect changesets",
	Long: `Changesets record the intent to release packages. They live as JSON files in
.changesets/ until 'bumpkit apply' archives them.`,
}

var (
	csAddPackages []string
	csAddMessage  string
	csAddType     string
	csAddBranch   string
	csAddReleases []string
	csAddAuthor   string
	csAddBreaking bool
)

var changesetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a release intent for one or more packages",
	Example: `  bumpkit changeset add --package @acme/api:minor --message "add search endpoint"
  bumpkit changeset add -p core:patch -p cli:patch -m "fix crash on empty input" --release staging`,
	Args: cobra.NoArgs,
	RunE: runChangesetAdd,
}

var csListArchivedFlag bool

var changesetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List pending (or archived) changesets",
	Args:    cobra.NoArgs,
	RunE:    runChangesetList,
}

var csShowFormatFlag string

var changesetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pending changeset",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangesetShow,
}

var (
	csDraftBase     string
	csDraftBranch   string
	csDraftReleases []string
	csDraftDryRun   bool
)

var changesetDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft a changeset from the commits since the base branch",
	Long: `Draft a changeset from Conventional Commits.

Commits between the merge base of --base and HEAD are attributed to the
packages whose directories they touch. Each package gets the largest bump its
commits suggest: breaking changes are major, feat is minor, fix and perf are
patch. The bump table is configurable with 'commit_types'.`,
	Example: `  bumpkit changeset draft
  bumpkit changeset draft --base develop --branch feat/search
  bumpkit changeset draft --dry-run`,
	Args: cobra.NoArgs,
	RunE: runChangesetDraft,
}

var changesetRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a pending changeset",
	Args:    cobra.ExactArgs(1),
	RunE:    runChangesetRemove,
}

func init() {
	changesetCmd.GroupID = GroupChangesets
	rootCmd.AddCommand(changesetCmd)
	changesetCmd.AddCommand(changesetAddCmd, changesetListCmd, changesetShowCmd, changesetDraftCmd, changesetRemoveCmd)

	changesetAddCmd.Flags().StringArrayVarP(&csAddPackages, "package", "p", nil, "Package and bump as <name>:<major|minor|patch> (repeatable)")
	changesetAddCmd.Flags().StringVarP(&csAddMessage, "message", "m", "", "Change description")
	changesetAddCmd.Flags().StringVarP(&csAddType, "type", "t", "", "Change type (default: derived from the bump)")
	changesetAddCmd.Flags().StringVarP(&csAddBranch, "branch", "b", "", "Branch name used in the changeset id (default: current git branch)")
	changesetAddCmd.Flags().StringSliceVarP(&csAddReleases, "release", "r", nil, "Target environments (default: default_releases)")
	changesetAddCmd.Flags().StringVar(&csAddAuthor, "author", "", "Author (default: git user.email)")
	changesetAddCmd.Flags().BoolVar(&csAddBreaking, "breaking", false, "Mark the change as breaking")
	_ = changesetAddCmd.MarkFlagRequired("package")
	_ = changesetAddCmd.MarkFlagRequired("message")

	changesetListCmd.Flags().BoolVar(&csListArchivedFlag, "archived", false, "List archived changesets instead")

	changesetShowCmd.Flags().StringVarP(&csShowFormatFlag, "format", "f", FormatText, "Output format: text, json")

	changesetDraftCmd.Flags().StringVar(&csDraftBase, "base", "", "Base branch (default: base_branch)")
	changesetDraftCmd.Flags().StringVarP(&csDraftBranch, "branch", "b", "", "Branch name used in the changeset id (default: current git branch)")
	changesetDraftCmd.Flags().StringSliceVarP(&csDraftReleases, "release", "r", nil, "Target environments (default: default_releases)")
	changesetDraftCmd.Flags().BoolVarP(&csDraftDryRun, "dry-run", "n", false, "Print the changeset without writing it")
}

// packageBump is one parsed --package value.
type packageBump struct {
	Name string
	Bump semver.Bump
}

// parsePackageBump splits "<name>:<bump>". Scoped names keep their leading "@".
func parsePackageBump(value string) (packageBump, error) {
	i := strings.LastIndex(value, ":")
	if i <= 0 || i == len(value)-1 {
		return packageBump{}, clierrors.InvalidPackageBump(value)
	}
	bump, err := semver.ParseBump(value[i+1:])
	if err != nil || bump == semver.BumpNone || bump == semver.BumpSnapshot {
		return packageBump{}, clierrors.InvalidPackageBump(value)
	}
	return packageBump{Name: strings.TrimSpace(value[:i]), Bump: bump}, nil
}

// changeTypeFor derives a change type from a bump.
func changeTypeFor(b semver.Bump) string {
	if b == semver.BumpPatch {
		return "fix"
	}
	return "feat"
}

func runChangesetAdd(cmd *cobra.Command, args []string) error {
	bumps := make([]packageBump, 0, len(csAddPackages))
	for _, v := range csAddPackages {
		pb, err := parsePackageBump(v)
		if err != nil {
			return err
		}
		bumps = append(bumps, pb)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	state, err := s.engine.Load(ctx)
	if err != nil {
		return err
	}

	c := &changeset.Changeset{
		Branch:   csAddBranch,
		Author:   csAddAuthor,
		Releases: csAddReleases,
	}
	if c.Branch == "" {
		c.Branch = s.currentBranch(cmd)
	}
	if c.Author == "" {
		c.Author = currentUser(s.repo)
	}
	ref := s.headCommit(cmd)
	for _, pb := range bumps {
		pkg, ok := state.Workspace.Package(pb.Name)
		if !ok {
			return &release.PackageNotFoundError{Name: pb.Name}
		}
		changeType := csAddType
		if changeType == "" {
			changeType = changeTypeFor(pb.Bump)
		}
		c.Packages = append(c.Packages, changeset.Package{
			Name:           pkg.Name,
			Bump:           pb.Bump,
			CurrentVersion: pkg.Version,
			NextVersion:    pkg.Version.Bump(pb.Bump, ""),
			Reason:         changeset.Direct(ref),
			Changes: []changeset.ChangeEntry{{
				ChangeType:  changeType,
				Description: csAddMessage,
				Breaking:    csAddBreaking || pb.Bump == semver.BumpMajor,
				Commit:      ref,
			}},
		})
	}

	if err := s.engine.Store().Create(ctx, c); err != nil {
		return err
	}
	output.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("created %s", relPath(s.engine.Root(), s.engine.Store().PathFor(c.ID()))))
	return nil
}

// currentBranch returns the checked out branch, or "changeset" outside git.
func (s *session) currentBranch(cmd *cobra.Command) string {
	if s.repo != nil {
		if b, err := s.repo.CurrentBranch(cmd.Context()); err == nil && b != "" {
			return b
		}
	}
	return "changeset"
}

// headCommit returns the short HEAD hash recorded as the direct change, or
// "uncommitted" outside git or before the first commit.
func (s *session) headCommit(cmd *cobra.Command) string {
	if s.repo != nil {
		if sha, err := s.repo.CurrentSHA(cmd.Context()); err == nil {
			return vcs.ShortHash(sha)
		}
	}
	return "uncommitted"
}

func runChangesetList(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	store := s.engine.Store()
	list, err := store.ListPending(cmd.Context())
	if csListArchivedFlag {
		list, err = store.ListArchived(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No changesets found.")
		return nil
	}
	for _, c := range list {
		sum := release.Summarize(c)
		fmt.Fprintf(out, "%s  %s  %s\n", sum.ID, strings.Join(sum.Packages, ", "), output.Dim("["+strings.Join(sum.Releases, ", ")+"]"))
	}
	return nil
}

func runChangesetShow(cmd *cobra.Command, args []string) error {
	if err := validateFormat(csShowFormatFlag, FormatText, FormatJSON); err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	c, err := s.engine.Store().Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if csShowFormatFlag == FormatJSON {
		data, err := changeset.Marshal(c)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	renderChangeset(out, c)
	return nil
}

func renderChangeset(w io.Writer, c *changeset.Changeset) {
	fmt.Fprintf(w, "%s\n", c.ID())
	fmt.Fprintf(w, "  branch:   %s\n", c.Branch)
	fmt.Fprintf(w, "  author:   %s\n", c.Author)
	fmt.Fprintf(w, "  created:  %s\n", c.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  releases: %s\n", strings.Join(c.Releases, ", "))
	for _, p := range c.Packages {
		fmt.Fprintf(w, "\n  %s  %s  %s\n", p.Name, output.Arrow(p.CurrentVersion.String(), p.NextVersion.String()), output.Bump(p.Bump.String()))
		for _, ch := range p.Changes {
			line := fmt.Sprintf("%s: %s", ch.ChangeType, ch.Description)
			if ch.Breaking {
				line = "BREAKING " + line
			}
			fmt.Fprintf(w, "    - %s\n", line)
		}
	}
}

func runChangesetDraft(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	branch := csDraftBranch
	if branch == "" {
		branch = s.currentBranch(cmd)
	}
	c, err := s.engine.Draft(cmd.Context(), release.DraftOptions{
		Base:     csDraftBase,
		Branch:   branch,
		Releases: csDraftReleases,
		RepoRoot: s.repoRoot(),
		DryRun:   csDraftDryRun,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderChangeset(out, c)
	if csDraftDryRun {
		fmt.Fprintln(out)
		output.PrintDryRun(out, "changeset not written")
		return nil
	}
	fmt.Fprintln(out)
	output.PrintSuccess(out, "created "+relPath(s.engine.Root(), s.engine.Store().PathFor(c.ID())))
	return nil
}

func runChangesetRemove(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	if err := s.engine.Store().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	output.PrintSuccess(cmd.OutOrStdout(), "removed "+args[0])
	return nil
}
