package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/apply"
	"github.com/ariel-frischer/bumpkit/internal/changelog"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/metrics"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// ConflictError is returned when conflicts are treated as fatal.
type ConflictError struct {
	Conflicts []resolver.Conflict
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Message
	}
	return fmt.Sprintf("plan has %d conflict(s): %s", len(e.Conflicts), strings.Join(msgs, "; "))
}

// Is reports the error as a conflict.
func (e *ConflictError) Is(target error) bool {
	return target == clierrors.ErrConflict
}

// ApplyOptions adjust one apply run.
type ApplyOptions struct {
	// Snapshot turns every bump into a snapshot bump and leaves changesets pending.
	Snapshot bool
	// DryRun resolves the plan without writing anything.
	DryRun bool
	// FailOnConflict aborts before writing when the plan records any conflict.
	FailOnConflict bool
}

// PackageError is a failure scoped to one package.
type PackageError struct {
	Package string
	Err     error
}

// Error implements the error interface.
func (e PackageError) Error() string {
	return e.Package + ": " + e.Err.Error()
}

type packageErrorDoc struct {
	Package string `json:"package" yaml:"package"`
	Error   string `json:"error" yaml:"error"`
}

// MarshalJSON encodes the error as its message.
func (e PackageError) MarshalJSON() ([]byte, error) {
	return json.Marshal(packageErrorDoc{Package: e.Package, Error: e.Err.Error()})
}

// MarshalYAML encodes the error as its message.
func (e PackageError) MarshalYAML() (any, error) {
	return packageErrorDoc{Package: e.Package, Error: e.Err.Error()}, nil
}

// ApplyResult describes a finished apply.
type ApplyResult struct {
	Plan       *resolver.Plan `json:"plan" yaml:"plan"`
	DryRun     bool           `json:"dry_run" yaml:"dry_run"`
	Snapshot   bool           `json:"snapshot" yaml:"snapshot"`
	BackupID   string         `json:"backup_id,omitempty" yaml:"backup_id,omitempty"`
	BackupKept bool           `json:"backup_kept" yaml:"backup_kept"`
	// Written lists the rewritten manifests in write order.
	Written []string `json:"written" yaml:"written"`
	// Changelogs lists the changelog files written.
	Changelogs []string `json:"changelogs" yaml:"changelogs"`
	// ChangelogErrors are per-package failures that did not stop the apply.
	ChangelogErrors []PackageError `json:"changelog_errors,omitempty" yaml:"changelog_errors,omitempty"`
	// Archived lists the changeset ids moved to the archive.
	Archived []string      `json:"archived" yaml:"archived"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// Apply resolves the pending changesets and writes the plan. The workspace
// lock is held for the whole run. Changelogs are written and changesets
// archived only after every manifest is written.
func (e *Engine) Apply(ctx context.Context, opts ApplyOptions) (res *ApplyResult, err error) {
	start := e.now()
	res = &ApplyResult{DryRun: opts.DryRun, Snapshot: opts.Snapshot}
	if !opts.DryRun {
		defer func() { e.recordApply(res, err, start) }()
	}

	unlock, err := e.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			e.logger.Warn("releasing workspace lock", slog.String("error", uerr.Error()))
		}
	}()

	var state *State
	if err := e.stage(StageLoad, func() error {
		var lerr error
		state, lerr = e.Load(ctx)
		return lerr
	}); err != nil {
		return nil, err
	}

	if err := e.stage(StageResolve, func() error {
		var perr error
		res.Plan, perr = e.plan(ctx, state, opts.Snapshot)
		return perr
	}); err != nil {
		return nil, err
	}
	plan := res.Plan

	if opts.FailOnConflict && len(plan.Conflicts) > 0 {
		return res, &ConflictError{Conflicts: plan.Conflicts}
	}
	if opts.DryRun {
		return res, nil
	}

	if !plan.Empty() {
		var applied *apply.Result
		if err := e.stage(StageApply, func() error {
			var aerr error
			applied, aerr = e.applier.Apply(ctx, plan)
			return aerr
		}); err != nil {
			return res, err
		}
		res.BackupID = applied.BackupID
		res.BackupKept = applied.BackupKept
		res.Written = applied.Written

		if e.cfg.Changelog.Enabled {
			_ = e.stage(StageChangelog, func() error {
				res.Changelogs, res.ChangelogErrors = e.writeChangelogs(ctx, state, plan)
				if len(res.ChangelogErrors) > 0 {
					return fmt.Errorf("%d changelog(s) failed", len(res.ChangelogErrors))
				}
				return nil
			})
		}
	}

	if opts.Snapshot {
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	ids := releasedIDs(state, plan)
	if len(ids) > 0 {
		if err := e.stage(StageArchive, func() error {
			var aerr error
			res.Archived, aerr = e.archive(ctx, ids)
			return aerr
		}); err != nil {
			res.Duration = e.now().Sub(start)
			return res, err
		}
	}

	res.Duration = e.now().Sub(start)
	e.logger.Info("apply finished",
		slog.Int("packages", len(res.Written)),
		slog.Int("archived", len(res.Archived)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// releasedIDs returns contributing and already-applied changesets in
// creation order.
func releasedIDs(state *State, plan *resolver.Plan) []string {
	var ids []string
	for _, c := range state.Pending {
		id := c.ID()
		if slices.Contains(plan.Changesets, id) || slices.Contains(plan.Applied, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// archive stamps release info onto each changeset and moves it to the
// archive. Every id is attempted.
func (e *Engine) archive(ctx context.Context, ids []string) ([]string, error) {
	at := e.now().UTC().Truncate(time.Second)
	commit := ""
	if e.repo != nil {
		sha, err := e.repo.CurrentSHA(ctx)
		if err != nil {
			e.logger.Warn("release commit unavailable", slog.String("error", err.Error()))
		} else {
			commit = sha
		}
	}

	var archived []string
	var errs []error
	for _, id := range ids {
		c, err := e.store.Load(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info := changeset.ReleaseInfo{
			AppliedAt:            at,
			AppliedBy:            e.user,
			GitCommit:            commit,
			EnvironmentsReleased: make(map[string]changeset.EnvironmentRelease, len(c.Releases)),
		}
		for _, env := range c.Releases {
			info.EnvironmentsReleased[env] = changeset.EnvironmentRelease{ReleasedAt: at, Tag: changeset.TagFor(env, at)}
		}
		if err := e.store.Archive(ctx, id, info); err != nil {
			errs = append(errs, err)
			continue
		}
		archived = append(archived, id)
	}
	if len(errs) > 0 {
		return archived, fmt.Errorf("archiving changesets: %w", errors.Join(errs...))
	}
	return archived, nil
}

// writeChangelogs writes one release block per planned package, bounded by
// max_concurrent_reads. Failures are collected per package.
func (e *Engine) writeChangelogs(ctx context.Context, state *State, plan *resolver.Plan) ([]string, []PackageError) {
	date := e.now()
	opts := e.ChangelogOptions()

	var mu sync.Mutex
	var written []string
	var failed []PackageError

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.MaxConcurrentReads))
	for _, u := range plan.Updates {
		g.Go(func() error {
			r := releaseFor(state, plan, u, date)
			path := filepath.Join(filepath.Dir(u.Path), changelog.FileName)
			err := gctx.Err()
			if err == nil {
				err = changelog.WriteReleaseWith(e.writeChangelog, path, u.Name, &r, opts)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("changelog not written", slog.String("package", u.Name), slog.String("error", err.Error()))
				failed = append(failed, PackageError{Package: u.Name, Err: err})
				return nil
			}
			written = append(written, path)
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(written)
	slices.SortFunc(failed, func(a, b PackageError) int { return strings.Compare(a.Package, b.Package) })
	return written, failed
}

// releaseFor builds the changelog block of one update from the change
// entries of its changesets. Packages bumped only through dependencies get
// one entry per rewritten requirement.
func releaseFor(state *State, plan *resolver.Plan, u resolver.PackageUpdate, date time.Time) changelog.Release {
	r := changelog.NewRelease(u.NextVersion.String(), date)
	for _, id := range u.Changesets {
		c, ok := state.Changeset(id)
		if !ok {
			continue
		}
		p, ok := c.Package(u.Name)
		if !ok {
			continue
		}
		for _, ce := range p.Changes {
			r.Changes.Add(changelog.FromChangeEntry(ce, c.Author, c.CreatedAt))
		}
	}
	if !r.Changes.IsEmpty() {
		return r
	}

	for _, d := range u.DependencyUpdates {
		desc := fmt.Sprintf("Updated dependency %s to %s", d.Name, d.NewReq)
		if dep, ok := plan.Update(d.Name); ok {
			desc = fmt.Sprintf("Updated dependency %s to %s", d.Name, dep.NextVersion)
		}
		r.Changes.Add(changelog.Changed, changelog.Entry{Type: "deps", Description: desc})
	}
	if r.Changes.IsEmpty() {
		r.Changes.Add(changelog.Changed, changelog.Entry{
			Type:        "chore",
			Description: fmt.Sprintf("Version bump to %s", u.NextVersion),
		})
	}
	return r
}

func (e *Engine) recordApply(res *ApplyResult, err error, start time.Time) {
	if e.metrics == nil {
		return
	}
	if res == nil {
		res = &ApplyResult{}
	}
	outcome := metrics.OutcomeSuccess
	var applyErr *apply.ApplyError
	switch {
	case errors.As(err, &applyErr) && applyErr.RestoreSucceeded:
		outcome = metrics.OutcomeRollback
	case errors.As(err, &applyErr):
		outcome = metrics.OutcomePartial
	case err != nil:
		outcome = metrics.OutcomeError
	case res.Plan == nil || res.Plan.Empty():
		outcome = metrics.OutcomeNoop
	}

	now := e.now()
	e.metrics.ObserveApply(outcome, now.Sub(start), now)
	if res.Plan != nil {
		for _, c := range res.Plan.Conflicts {
			e.metrics.Conflict(string(c.Kind))
		}
		if outcome == metrics.OutcomeSuccess {
			for _, u := range res.Plan.Updates {
				e.metrics.PackageUpdated(u.Bump.String())
			}
		}
	}
	e.metrics.ChangesetsArchived(len(res.Archived))

	if e.cfg.MetricsFile == "" {
		return
	}
	if werr := e.metrics.WriteTextfile(e.cfg.MetricsFile); werr != nil {
		e.logger.Warn("metrics not written", slog.String("path", e.cfg.MetricsFile), slog.String("error", werr.Error()))
	}
}
