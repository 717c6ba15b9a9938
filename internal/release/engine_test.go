package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/apply"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/config"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var applyTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newEngine(t *testing.T, root string, cfg *config.Configuration, opts ...Option) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	base := []Option{WithClock(func() time.Time { return applyTime }), WithLogger(logger), WithUser("release@example.com")}
	e, err := New(root, cfg, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func intent(name, current string, bump semver.Bump, changes ...changeset.ChangeEntry) changeset.Package {
	cur := semver.MustParse(current)
	return changeset.Package{
		Name:           name,
		Bump:           bump,
		CurrentVersion: cur,
		NextVersion:    cur.Bump(bump, ""),
		Reason:         changeset.Direct("abc1234"),
		Changes:        changes,
	}
}

func createChangeset(t *testing.T, e *Engine, branch string, pkgs ...changeset.Package) *changeset.Changeset {
	t.Helper()
	c := &changeset.Changeset{
		Branch:    branch,
		CreatedAt: applyTime.Add(-time.Hour),
		Author:    "dev@example.com",
		Releases:  []string{"dev", "staging"},
		Packages:  pkgs,
	}
	require.NoError(t, e.Store().Create(context.Background(), c))
	return c
}

func manifestVersion(t *testing.T, path string) string {
	t.Helper()
	content := testutil.ReadFile(t, path)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, `"version": "`); ok {
			return strings.TrimSuffix(strings.TrimSuffix(v, ","), `"`)
		}
	}
	t.Fatalf("no version in %s", path)
	return ""
}

func TestApply_SinglePackagePatch(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).Package("a", "1.2.3")
	root := b.Build()
	original := testutil.ReadFile(t, b.ManifestPath("a"))

	cfg := config.Defaults()
	cfg.Backups.KeepAfterSuccess = true
	e := newEngine(t, root, cfg)
	c := createChangeset(t, e, "fix/a", intent("a", "1.2.3", semver.BumpPatch,
		changeset.ChangeEntry{ChangeType: "fix", Description: "handle empty input", Commit: "abc1234"}))

	res, err := e.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)

	require.Len(t, res.Plan.Updates, 1)
	assert.Equal(t, "1.2.4", res.Plan.Updates[0].NextVersion.String())
	assert.Equal(t, "1.2.4", manifestVersion(t, b.ManifestPath("a")))
	assert.Equal(t, []string{b.ManifestPath("a")}, res.Written)

	t.Run("backup holds the original", func(t *testing.T) {
		require.True(t, res.BackupKept)
		bk, err := e.Backups().Get(res.BackupID)
		require.NoError(t, err)
		copyPath, err := bk.PathFor(b.ManifestPath("a"))
		require.NoError(t, err)
		assert.Equal(t, original, testutil.ReadFile(t, copyPath))
		assert.True(t, bk.Success)
	})

	t.Run("changeset archived by month", func(t *testing.T) {
		assert.Equal(t, []string{c.ID()}, res.Archived)
		archived := filepath.Join(root, changeset.DirName, changeset.ArchiveDirName, "2024", "01", c.FileName())
		require.FileExists(t, archived)
		assert.NoFileExists(t, e.Store().PathFor(c.ID()))

		stored, err := changeset.Unmarshal([]byte(testutil.ReadFile(t, archived)))
		require.NoError(t, err)
		require.NotNil(t, stored.ReleaseInfo)
		assert.Equal(t, "release@example.com", stored.ReleaseInfo.AppliedBy)
		assert.Equal(t, applyTime, stored.ReleaseInfo.AppliedAt)
		assert.Equal(t, "staging-20240115T103000Z", stored.ReleaseInfo.EnvironmentsReleased["staging"].Tag)
	})

	t.Run("changelog written", func(t *testing.T) {
		path := filepath.Join(b.Dir("a"), "CHANGELOG.md")
		assert.Equal(t, []string{path}, res.Changelogs)
		content := testutil.ReadFile(t, path)
		assert.Contains(t, content, "## [1.2.4] - 2024-01-15")
		assert.Contains(t, content, "### Fixed\n- handle empty input")
	})
}

func TestApply_IsIdempotent(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		strategy string
		bumps    []semver.Bump
		wantA    string
	}{
		"independent one changeset": {
			strategy: "independent",
			bumps:    []semver.Bump{semver.BumpMinor},
			wantA:    "1.3.0",
		},
		"independent patch and minor": {
			strategy: "independent",
			bumps:    []semver.Bump{semver.BumpPatch, semver.BumpMinor},
			wantA:    "1.3.0",
		},
		"unified one changeset": {
			strategy: "unified",
			bumps:    []semver.Bump{semver.BumpMinor},
			wantA:    "1.6.0",
		},
		"unified patch and minor": {
			strategy: "unified",
			bumps:    []semver.Bump{semver.BumpPatch, semver.BumpMinor},
			wantA:    "1.6.0",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := testutil.NewWorkspace(t).
				Package("a", "1.2.3").
				Package("b", "1.5.0", testutil.Dependency("a", "^1.2.3")).
				Package("c", "0.9.0")
			root := b.Build()
			paths := []string{b.ManifestPath("a"), b.ManifestPath("b"), b.ManifestPath("c")}

			cfg := config.Defaults()
			cfg.Strategy = tt.strategy
			e := newEngine(t, root, cfg)

			var created []*changeset.Changeset
			var ids []string
			for i, bump := range tt.bumps {
				c := &changeset.Changeset{
					Branch:    fmt.Sprintf("change-%d", i),
					CreatedAt: applyTime.Add(-time.Hour + time.Duration(i)*time.Minute),
					Author:    "dev@example.com",
					Releases:  []string{"dev"},
					Packages: []changeset.Package{intent("a", "1.2.3", bump,
						changeset.ChangeEntry{ChangeType: "feat", Description: fmt.Sprintf("change %d", i)})},
				}
				require.NoError(t, e.Store().Create(context.Background(), c))
				created = append(created, c)
				ids = append(ids, c.ID())
			}

			first, err := e.Apply(context.Background(), ApplyOptions{})
			require.NoError(t, err)
			require.False(t, first.Plan.Empty())
			assert.Equal(t, tt.wantA, manifestVersion(t, b.ManifestPath("a")))
			assert.Contains(t, testutil.ReadFile(t, b.ManifestPath("b")), `"a": "^`+tt.wantA+`"`)
			assert.Equal(t, ids, first.Archived)
			after := testutil.SnapshotFiles(t, paths...)

			t.Run("rerun plans nothing", func(t *testing.T) {
				second, err := e.Apply(context.Background(), ApplyOptions{})
				require.NoError(t, err)
				assert.True(t, second.Plan.Empty())
				assert.Empty(t, second.Written)
				assert.Empty(t, second.Archived)
				assert.Equal(t, after, testutil.SnapshotFiles(t, paths...))
			})

			t.Run("crash before archive", func(t *testing.T) {
				for _, c := range created {
					data, err := changeset.Marshal(c)
					require.NoError(t, err)
					require.NoError(t, os.WriteFile(e.Store().PathFor(c.ID()), data, 0o644))
				}

				dry, err := e.Apply(context.Background(), ApplyOptions{DryRun: true})
				require.NoError(t, err)
				assert.True(t, dry.Plan.Empty(), "retry planned %v", dry.Plan.Names())
				assert.Equal(t, ids, dry.Plan.Applied)

				retry, err := e.Apply(context.Background(), ApplyOptions{})
				require.NoError(t, err)
				assert.True(t, retry.Plan.Empty())
				assert.Empty(t, retry.Written)
				assert.Equal(t, ids, retry.Archived)
				assert.Equal(t, after, testutil.SnapshotFiles(t, paths...))
				for _, id := range ids {
					assert.NoFileExists(t, e.Store().PathFor(id))
				}
			})

			entries, err := e.Backups().List()
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestApply_RollbackLeavesChangesetsPending(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		Package("a", "1.0.0").
		Package("b", "1.0.0", testutil.Dependency("a", "^1.0.0")).
		Package("c", "1.0.0", testutil.Dependency("b", "^1.0.0"))
	root := b.Build()
	paths := []string{b.ManifestPath("a"), b.ManifestPath("b"), b.ManifestPath("c")}
	before := testutil.SnapshotFiles(t, paths...)

	failing := func(path string, data []byte, perm os.FileMode) error {
		if path == b.ManifestPath("b") {
			return errors.New("disk full")
		}
		return fsutil.AtomicWriteFile(path, data, perm)
	}
	cfg := config.Defaults()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "bumpkit.prom")
	e := newEngine(t, root, cfg, WithManifestWriter(failing))
	c := createChangeset(t, e, "feat/a", intent("a", "1.0.0", semver.BumpMinor))

	_, err := e.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)

	var applyErr *apply.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.True(t, applyErr.RestoreSucceeded)
	assert.Equal(t, before, testutil.SnapshotFiles(t, paths...))
	assert.FileExists(t, e.Store().PathFor(c.ID()))
	assert.NoFileExists(t, filepath.Join(b.Dir("a"), "CHANGELOG.md"))

	entries, err := e.Backups().List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)

	assert.Contains(t, testutil.ReadFile(t, cfg.MetricsFile), "bumpkit_apply_rollbacks_total 1")
}

func TestApply_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).Package("a", "1.2.3")
	root := b.Build()
	before := testutil.ReadFile(t, b.ManifestPath("a"))
	e := newEngine(t, root, nil)
	c := createChangeset(t, e, "fix/a", intent("a", "1.2.3", semver.BumpPatch))

	res, err := e.Apply(context.Background(), ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []string{"a"}, res.Plan.Names())
	assert.Equal(t, before, testutil.ReadFile(t, b.ManifestPath("a")))
	assert.FileExists(t, e.Store().PathFor(c.ID()))
	assert.NoDirExists(t, filepath.Join(root, ".pkg-backups"))
}

func TestApply_SnapshotKeepsChangesetsPending(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).Package("a", "1.2.3")
	root := b.Build()
	repo := testutil.NewFakeVcs()
	head := repo.AddCommit("feat: add X", "packages/a/index.js")

	cfg := config.Defaults()
	cfg.Changelog.Enabled = false
	e := newEngine(t, root, cfg, WithVcs(repo))
	c := createChangeset(t, e, "feat/a", intent("a", "1.2.3", semver.BumpMinor))

	res, err := e.Apply(context.Background(), ApplyOptions{Snapshot: true})
	require.NoError(t, err)

	want := "1.2.3-0.snapshot." + head.Hash[:8]
	assert.Equal(t, want, manifestVersion(t, b.ManifestPath("a")))
	assert.Empty(t, res.Archived)
	assert.Empty(t, res.Changelogs)
	assert.FileExists(t, e.Store().PathFor(c.ID()))
}

func TestApply_ArchivesAlreadyAppliedChangesets(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).Package("a", "1.2.4")
	root := b.Build()
	before := testutil.ReadFile(t, b.ManifestPath("a"))
	e := newEngine(t, root, nil)
	c := createChangeset(t, e, "fix/a", intent("a", "1.2.3", semver.BumpPatch))

	res, err := e.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty())
	assert.Equal(t, []string{c.ID()}, res.Plan.Applied)
	assert.Equal(t, []string{c.ID()}, res.Archived)
	assert.Equal(t, before, testutil.ReadFile(t, b.ManifestPath("a")))
	assert.NoFileExists(t, e.Store().PathFor(c.ID()))
}

func TestApply_FailOnConflict(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		Package("a", "1.0.0").
		Package("b", "1.0.0", testutil.Dependency("a", "^1.0.0"))
	root := b.Build()
	before := testutil.SnapshotFiles(t, b.ManifestPath("a"), b.ManifestPath("b"))
	e := newEngine(t, root, nil)
	createChangeset(t, e, "feat/a", intent("a", "1.0.0", semver.BumpMajor))

	res, err := e.Apply(context.Background(), ApplyOptions{FailOnConflict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, clierrors.ErrConflict)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.NotEmpty(t, conflictErr.Conflicts)
	assert.Equal(t, resolver.PotentialBreakingChange, conflictErr.Conflicts[0].Kind)
	assert.NotNil(t, res.Plan)
	assert.Equal(t, before, testutil.SnapshotFiles(t, b.ManifestPath("a"), b.ManifestPath("b")))
}

func TestApply_ChangelogFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		Package("a", "1.0.0").
		Package("b", "1.0.0", testutil.Dependency("a", "^1.0.0"))
	root := b.Build()

	failing := func(path string, data []byte, perm os.FileMode) error {
		if strings.HasPrefix(path, b.Dir("b")) {
			return errors.New("read-only file system")
		}
		return fsutil.AtomicWriteFile(path, data, perm)
	}
	e := newEngine(t, root, nil, WithChangelogWriter(failing))
	c := createChangeset(t, e, "feat/a", intent("a", "1.0.0", semver.BumpMinor,
		changeset.ChangeEntry{ChangeType: "feat", Description: "add X"}))

	res, err := e.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	require.Len(t, res.ChangelogErrors, 1)
	assert.Equal(t, "b", res.ChangelogErrors[0].Package)
	assert.ErrorIs(t, res.ChangelogErrors[0].Err, clierrors.ErrIO)
	assert.Equal(t, []string{filepath.Join(b.Dir("a"), "CHANGELOG.md")}, res.Changelogs)
	assert.Equal(t, []string{c.ID()}, res.Archived)
	assert.Equal(t, "1.0.1", manifestVersion(t, b.ManifestPath("b")))
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) StageStarted(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "start "+name)
}

func (o *recordingObserver) StageFinished(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "done "+name)
}

func TestApply_ReportsStages(t *testing.T) {
	t.Parallel()

	root := testutil.NewWorkspace(t).Package("a", "1.0.0").Build()
	obs := &recordingObserver{}
	e := newEngine(t, root, nil, WithObserver(obs))
	createChangeset(t, e, "fix/a", intent("a", "1.0.0", semver.BumpPatch))

	_, err := e.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"start " + StageLoad, "done " + StageLoad,
		"start " + StageResolve, "done " + StageResolve,
		"start " + StageApply, "done " + StageApply,
		"start " + StageChangelog, "done " + StageChangelog,
		"start " + StageArchive, "done " + StageArchive,
	}, obs.events)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		Package("a", "1.0.0", testutil.DevDependency("b", "^1.0.0")).
		Package("b", "1.0.0", testutil.Dependency("a", "^1.0.0"))
	root := b.Build()
	e := newEngine(t, root, nil)
	c := createChangeset(t, e, "feat/a", intent("a", "1.0.0", semver.BumpMinor))

	st, err := e.Status(context.Background(), StatusOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, st.Packages)
	require.Len(t, st.Pending, 1)
	assert.Equal(t, c.ID(), st.Pending[0].ID)
	assert.Equal(t, []string{"a"}, st.Pending[0].Packages)
	assert.ElementsMatch(t, []string{"a", "b"}, st.Plan.Names())
	require.Len(t, st.Cycles, 1)
	assert.Equal(t, "1.0.0", manifestVersion(t, b.ManifestPath("a")))
}

func TestStatus_DirtyWorktree(t *testing.T) {
	t.Parallel()

	root := testutil.NewWorkspace(t).Package("a", "1.0.0").Build()
	repo := testutil.NewFakeVcs()
	repo.AddCommit("chore: init", "package.json")
	repo.SetDirty(true)
	e := newEngine(t, root, nil, WithVcs(repo))
	createChangeset(t, e, "fix/a", intent("a", "1.0.0", semver.BumpPatch))

	st, err := e.Status(context.Background(), StatusOptions{})
	require.NoError(t, err)
	assert.Len(t, st.Plan.ConflictsOf(resolver.DirtyWorkingDirectory), 1)

	_, err = e.Apply(context.Background(), ApplyOptions{FailOnConflict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, clierrors.ErrConflict)
	assert.Equal(t, "1.0.0", manifestVersion(t, filepath.Join(root, "packages", "a", "package.json")))
}
