package apply

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/backup"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chain struct {
	root  string
	paths map[string]string
	plan  *resolver.Plan
}

// newChain builds a <- b <- c and plans a minor bump of a.
func newChain(t *testing.T) chain {
	t.Helper()
	b := testutil.NewWorkspace(t).
		Package("a", "1.0.0").
		Package("b", "1.0.0", testutil.Dependency("a", "^1.0.0")).
		Package("c", "1.0.0", testutil.Dependency("b", "^1.0.0"))
	root := b.Build()

	ws, err := workspace.NewLoader().Load(context.Background(), root, nil)
	require.NoError(t, err)
	g, err := graph.Build(ws.Packages)
	require.NoError(t, err)

	cur := semver.MustParse("1.0.0")
	set := &changeset.Changeset{
		Branch:    "feature/a",
		CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Author:    "dev@example.com",
		Releases:  []string{"dev"},
		Packages: []changeset.Package{{
			Name:           "a",
			Bump:           semver.BumpMinor,
			CurrentVersion: cur,
			NextVersion:    cur.Bump(semver.BumpMinor, ""),
			Reason:         changeset.Direct("abc1234"),
			Changes:        []changeset.ChangeEntry{{ChangeType: "feat", Description: "add thing", Commit: "abc1234"}},
		}},
	}
	plan, err := resolver.Resolve([]*changeset.Changeset{set}, g, resolver.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, plan.Names())

	return chain{
		root: root,
		paths: map[string]string{
			"a": b.ManifestPath("a"),
			"b": b.ManifestPath("b"),
			"c": b.ManifestPath("c"),
		},
		plan: plan,
	}
}

func (c chain) files() []string {
	return []string{c.paths["a"], c.paths["b"], c.paths["c"]}
}

func version(t *testing.T, path string) string {
	t.Helper()
	m, err := manifest.Read(path)
	require.NoError(t, err)
	v, err := m.Version()
	require.NoError(t, err)
	return v.String()
}

func TestApply_WritesEveryManifest(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	backups := backup.NewManager(c.root)
	result, err := NewApplier(backups).Apply(context.Background(), c.plan)
	require.NoError(t, err)

	assert.Equal(t, c.files(), result.Written)
	assert.False(t, result.BackupKept)
	assert.Equal(t, "1.1.0", version(t, c.paths["a"]))
	assert.Equal(t, "1.0.1", version(t, c.paths["b"]))
	assert.Equal(t, "1.0.1", version(t, c.paths["c"]))
	assert.Contains(t, testutil.ReadFile(t, c.paths["b"]), `"a": "^1.1.0"`)
	assert.Contains(t, testutil.ReadFile(t, c.paths["c"]), `"b": "^1.0.1"`)

	entries, err := backups.List()
	require.NoError(t, err)
	assert.Empty(t, entries, "successful backups are removed unless kept")
}

func TestApply_KeepsBackupWhenConfigured(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	before := testutil.SnapshotFiles(t, c.files()...)
	backups := backup.NewManager(c.root, backup.WithKeepAfterSuccess(true))

	result, err := NewApplier(backups).Apply(context.Background(), c.plan)
	require.NoError(t, err)
	assert.True(t, result.BackupKept)

	bk, err := backups.Get(result.BackupID)
	require.NoError(t, err)
	assert.True(t, bk.Success)
	assert.Equal(t, Operation, bk.Operation)

	copied, err := os.ReadFile(bk.Dir + "/packages/a/package.json")
	require.NoError(t, err)
	assert.Equal(t, before[c.paths["a"]], string(copied))
}

func TestApply_RollsBackOnWriteFailure(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	before := testutil.SnapshotFiles(t, c.files()...)
	backups := backup.NewManager(c.root)

	injected := errors.New("disk full")
	write := func(path string, data []byte, perm os.FileMode) error {
		if path == c.paths["b"] {
			// leave a torn file behind to prove it is restored too
			_ = os.WriteFile(path, data[:len(data)/2], perm)
			return injected
		}
		return fsutil.AtomicWriteFile(path, data, perm)
	}

	_, err := NewApplier(backups, WithWriteFile(write)).Apply(context.Background(), c.plan)
	require.Error(t, err)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.True(t, applyErr.RestoreSucceeded)
	assert.Empty(t, applyErr.RestoreErrors)
	assert.Equal(t, c.paths["b"], applyErr.Path)
	assert.ErrorIs(t, err, injected)
	assert.ErrorIs(t, err, clierrors.ErrIO)
	assert.Contains(t, err.Error(), "all manifests restored")

	assert.Equal(t, before, testutil.SnapshotFiles(t, c.files()...))

	bk, err := backups.Get(applyErr.BackupID)
	require.NoError(t, err)
	assert.False(t, bk.Success)
}

func TestApply_CancelledMidway(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	before := testutil.SnapshotFiles(t, c.files()...)
	ctx, cancel := context.WithCancel(context.Background())

	write := func(path string, data []byte, perm os.FileMode) error {
		if path == c.paths["a"] {
			cancel()
		}
		return fsutil.AtomicWriteFile(path, data, perm)
	}

	_, err := NewApplier(backup.NewManager(c.root), WithWriteFile(write)).Apply(ctx, c.plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, c.paths["b"], applyErr.Path)
	assert.True(t, applyErr.RestoreSucceeded)
	assert.Equal(t, before, testutil.SnapshotFiles(t, c.files()...))
}

func TestApply_IncompleteRollback(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	backups := backup.NewManager(c.root, backup.WithKeepAfterSuccess(true))

	write := func(path string, data []byte, perm os.FileMode) error {
		if path == c.paths["c"] {
			entries, err := backups.List()
			if err == nil && len(entries) > 0 {
				_ = os.Remove(backups.Dir() + "/" + entries[0].ID + "/packages/a/package.json")
			}
			return errors.New("boom")
		}
		return fsutil.AtomicWriteFile(path, data, perm)
	}

	_, err := NewApplier(backups, WithWriteFile(write)).Apply(context.Background(), c.plan)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.False(t, applyErr.RestoreSucceeded)
	require.Len(t, applyErr.RestoreErrors, 1)
	assert.ErrorIs(t, applyErr.RestoreErrors[0], clierrors.ErrCorruption)
	assert.Contains(t, err.Error(), "restore manually from backup "+applyErr.BackupID)

	assert.Equal(t, "1.0.0", version(t, c.paths["b"]), "later files are still restored")
	assert.Equal(t, "1.1.0", version(t, c.paths["a"]))
}

func TestApply_StalePlan(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	m, err := manifest.Read(c.paths["b"])
	require.NoError(t, err)
	require.NoError(t, m.SetVersion(semver.MustParse("1.0.5")))
	require.NoError(t, manifest.Write(c.paths["b"], m))
	before := testutil.SnapshotFiles(t, c.files()...)

	backups := backup.NewManager(c.root)
	_, err = NewApplier(backups).Apply(context.Background(), c.plan)
	require.Error(t, err)

	var stale *StalePlanError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "1.0.5", stale.Actual)
	assert.ErrorIs(t, err, clierrors.ErrConflict)
	assert.Equal(t, before, testutil.SnapshotFiles(t, c.files()...))

	entries, err := backups.List()
	require.NoError(t, err)
	assert.Empty(t, entries, "no backup is taken for a stale plan")
}

func TestApply_EmptyPlan(t *testing.T) {
	t.Parallel()

	result, err := NewApplier(backup.NewManager(t.TempDir())).Apply(context.Background(), &resolver.Plan{})
	require.NoError(t, err)
	assert.Empty(t, result.BackupID)
	assert.Empty(t, result.Written)
}
