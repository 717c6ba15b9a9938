package release

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/changelog"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/commits"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
)

// ErrNoVcs is returned by operations that read history when the engine has
// no version control backend.
var ErrNoVcs = fmt.Errorf("no version control repository: %w", clierrors.ErrVcs)

// BranchNotFoundError reports a missing base branch.
type BranchNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %q not found", e.Name)
}

// Is reports the error as a failed lookup.
func (e *BranchNotFoundError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// PackageNotFoundError reports an unknown package name.
type PackageNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package %q is not part of the workspace", e.Name)
}

// Is reports the error as a failed lookup.
func (e *PackageNotFoundError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// NoChangesError is returned when history holds nothing releasable.
type NoChangesError struct {
	Range string
}

// Error implements the error interface.
func (e *NoChangesError) Error() string {
	return fmt.Sprintf("no releasable commits in %s", e.Range)
}

// Is reports the error as a validation failure.
func (e *NoChangesError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// DraftOptions configure Draft.
type DraftOptions struct {
	// Base is the branch the work diverged from (default: base_branch).
	Base string
	// Branch names the changeset (default: "draft").
	Branch   string
	Author   string
	Releases []string
	// RepoRoot is the repository root when it differs from the workspace root.
	RepoRoot string
	// DryRun returns the changeset without writing it.
	DryRun bool
}

// Draft builds a changeset from the commits between the merge base of Base
// and HEAD. Each commit is attributed to the packages whose directories it
// touches and the largest suggested bump wins per package.
func (e *Engine) Draft(ctx context.Context, opts DraftOptions) (*changeset.Changeset, error) {
	if e.repo == nil {
		return nil, ErrNoVcs
	}
	base := opts.Base
	if base == "" {
		base = e.cfg.BaseBranch
	}

	exists, err := e.repo.BranchExists(ctx, base)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &BranchNotFoundError{Name: base}
	}
	head, err := e.repo.CurrentSHA(ctx)
	if err != nil {
		return nil, err
	}
	mergeBase, err := e.repo.MergeBase(ctx, base, head)
	if err != nil {
		return nil, err
	}
	list, err := e.repo.CommitsBetween(ctx, mergeBase, head)
	if err != nil {
		return nil, err
	}
	refRange := vcs.ShortHash(mergeBase) + ".." + vcs.ShortHash(head)
	if len(list) == 0 {
		return nil, &NoChangesError{Range: refRange}
	}

	ws, err := e.loader.Load(ctx, e.root, e.cfg.Workspaces)
	if err != nil {
		return nil, err
	}
	files, err := commits.ChangedFiles(ctx, e.repo, list)
	if err != nil {
		return nil, err
	}
	byPackage := commits.ByPackage(e.analyzer.Analyze(list), files, e.packageDirs(ws, opts.RepoRoot))

	c := &changeset.Changeset{
		Branch:   opts.Branch,
		Author:   opts.Author,
		Releases: opts.Releases,
	}
	if c.Branch == "" {
		c.Branch = "draft"
	}
	if c.Author == "" {
		c.Author = e.user
	}
	for _, pkg := range ws.Packages {
		if entry, ok := draftEntry(pkg, byPackage[pkg.Name]); ok {
			c.Packages = append(c.Packages, entry)
		}
	}
	if len(c.Packages) == 0 {
		return nil, &NoChangesError{Range: refRange}
	}

	if opts.DryRun {
		c.CreatedAt = e.now().UTC().Truncate(time.Second)
		if len(c.Releases) == 0 {
			c.Releases = append([]string(nil), e.cfg.DefaultReleases...)
		}
		return c, changeset.Validate(c, e.cfg.Environments)
	}
	if err := e.store.Create(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("changeset drafted",
		slog.String("id", c.ID()),
		slog.String("range", refRange),
		slog.Int("commits", len(list)),
	)
	return c, nil
}

// packageDirs maps package names to slash-separated directories relative to
// the repository root.
func (e *Engine) packageDirs(ws *workspace.Workspace, repoRoot string) map[string]string {
	if repoRoot == "" {
		repoRoot = e.root
	}
	dirs := make(map[string]string, len(ws.Packages))
	for _, pkg := range ws.Packages {
		rel := pkg.RelDir(repoRoot)
		if rel == "." {
			rel = ""
		}
		dirs[pkg.Name] = rel
	}
	return dirs
}

func draftEntry(pkg *workspace.Package, changes []commits.Change) (changeset.Package, bool) {
	bump := commits.SuggestBump(changes)
	if bump == semver.BumpNone {
		return changeset.Package{}, false
	}

	var hashes []string
	var entries []changeset.ChangeEntry
	for _, ch := range changes {
		if ch.Bump == semver.BumpNone && !ch.Breaking {
			continue
		}
		hashes = append(hashes, ch.ShortHash)
		entries = append(entries, changeset.ChangeEntry{
			ChangeType:  ch.Type,
			Description: ch.Description,
			Breaking:    ch.Breaking,
			Commit:      ch.ShortHash,
		})
	}
	return changeset.Package{
		Name:           pkg.Name,
		Bump:           bump,
		CurrentVersion: pkg.Version,
		NextVersion:    pkg.Version.Bump(bump, ""),
		Reason:         changeset.Direct(hashes...),
		Changes:        entries,
	}, true
}

// HistoryResult is a changelog built from history.
type HistoryResult struct {
	Changelog *changelog.Changelog
	// Path is the file written, if any.
	Path string
}

// HistoryOptions configure ChangelogFromHistory.
type HistoryOptions struct {
	Package string
	// From is exclusive; empty means the full history of To.
	From string
	// To defaults to HEAD.
	To string
	// Version defaults to the package's current version.
	Version  string
	RepoRoot string
	// Write merges the block into the package CHANGELOG.md.
	Write bool
}

// ChangelogFromHistory builds the changelog block of one package from the
// commits in From..To that touch its directory. It returns the changelog and,
// when Write is set, the file written.
func (e *Engine) ChangelogFromHistory(ctx context.Context, opts HistoryOptions) (*HistoryResult, error) {
	if e.repo == nil {
		return nil, ErrNoVcs
	}
	ws, err := e.loader.Load(ctx, e.root, e.cfg.Workspaces)
	if err != nil {
		return nil, err
	}
	pkg, ok := ws.Package(opts.Package)
	if !ok {
		return nil, &PackageNotFoundError{Name: opts.Package}
	}

	to := opts.To
	if to == "" {
		to = "HEAD"
	}
	list, err := e.repo.CommitsBetween(ctx, opts.From, to)
	if err != nil {
		return nil, err
	}
	dir := e.packageDirs(ws, opts.RepoRoot)[pkg.Name]
	filtered, err := commits.FilterByPaths(ctx, e.repo, list, []string{dir})
	if err != nil {
		return nil, err
	}

	version := opts.Version
	if version == "" {
		version = pkg.Version.String()
	}
	res := &HistoryResult{Changelog: changelog.Generate(pkg.Name, version, e.now(), e.analyzer.Analyze(filtered))}
	if !opts.Write {
		return res, nil
	}

	res.Path = filepath.Join(pkg.Dir, changelog.FileName)
	if err := changelog.WriteReleaseWith(e.writeChangelog, res.Path, pkg.Name, &res.Changelog.Releases[0], e.ChangelogOptions()); err != nil {
		return nil, err
	}
	return res, nil
}
