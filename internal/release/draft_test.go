package release

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ariel-frischer/bumpkit/internal/config"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type history struct {
	root string
	repo *testutil.FakeVcs
	feat vcs.Commit
	fix  vcs.Commit
}

// newHistory builds packages a and b, a main branch at the first commit and
// three feature commits on top of it.
func newHistory(t *testing.T) history {
	t.Helper()
	root := testutil.NewWorkspace(t).
		Package("a", "1.0.0").
		Package("b", "2.3.0").
		Build()

	repo := testutil.NewFakeVcs()
	testutil.LogCallsOnFailure(t, repo)
	base := repo.AddCommit("chore: initial import", "package.json")
	repo.SetBranch("main", base.Hash)
	feat := repo.AddCommit("feat(api): add X\n\nCloses #42", "packages/a/index.js")
	fix := repo.AddCommit("fix: handle Y", "packages/b/y.js", "packages/a/y.js")
	repo.AddCommit("docs: update readme", "README.md")
	return history{root: root, repo: repo, feat: feat, fix: fix}
}

func TestDraft(t *testing.T) {
	t.Parallel()

	h := newHistory(t)
	e := newEngine(t, h.root, nil, WithVcs(h.repo))

	c, err := e.Draft(context.Background(), DraftOptions{Branch: "feat/x"})
	require.NoError(t, err)

	assert.Equal(t, "feat/x", c.Branch)
	assert.Equal(t, "release@example.com", c.Author)
	assert.Equal(t, []string{"dev"}, c.Releases)
	require.Len(t, c.Packages, 2)

	a := c.Packages[0]
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, semver.BumpMinor, a.Bump)
	assert.Equal(t, "1.1.0", a.NextVersion.String())
	assert.Equal(t, []string{h.fix.ShortHash, h.feat.ShortHash}, a.Reason.Commits)
	require.Len(t, a.Changes, 2)
	assert.Equal(t, "fix", a.Changes[0].ChangeType)
	assert.Equal(t, "add X", a.Changes[1].Description)

	b := c.Packages[1]
	assert.Equal(t, "b", b.Name)
	assert.Equal(t, semver.BumpPatch, b.Bump)
	assert.Equal(t, "2.3.1", b.NextVersion.String())

	assert.FileExists(t, e.Store().PathFor(c.ID()))
}

func TestDraft_DryRun(t *testing.T) {
	t.Parallel()

	h := newHistory(t)
	e := newEngine(t, h.root, nil, WithVcs(h.repo))

	c, err := e.Draft(context.Background(), DraftOptions{Branch: "feat/x", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, applyTime, c.CreatedAt)
	assert.NoFileExists(t, e.Store().PathFor(c.ID()))
}

func TestDraft_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup   func(h history) []Option
		opts    DraftOptions
		wantErr error
	}{
		"no vcs": {
			setup:   func(history) []Option { return nil },
			wantErr: clierrors.ErrVcs,
		},
		"unknown base": {
			setup:   func(h history) []Option { return []Option{WithVcs(h.repo)} },
			opts:    DraftOptions{Base: "develop"},
			wantErr: clierrors.ErrNotFound,
		},
		"nothing releasable": {
			setup: func(h history) []Option {
				h.repo.SetBranch("docs", h.repo.AddCommit("docs: more", "README.md").Hash)
				return []Option{WithVcs(h.repo)}
			},
			opts:    DraftOptions{Base: "docs"},
			wantErr: clierrors.ErrValidation,
		},
		"vcs failure surfaces": {
			setup: func(h history) []Option {
				h.repo.FailOn("MergeBase", &vcs.Error{Op: "merge-base", Reason: "shallow clone"})
				return []Option{WithVcs(h.repo)}
			},
			wantErr: clierrors.ErrVcs,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHistory(t)
			e := newEngine(t, h.root, nil, tt.setup(h)...)

			_, err := e.Draft(context.Background(), tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChangelogFromHistory(t *testing.T) {
	t.Parallel()

	h := newHistory(t)
	cfg := config.Defaults()
	cfg.Changelog.RepoURL = "https://github.com/acme/tools"
	e := newEngine(t, h.root, cfg, WithVcs(h.repo))

	res, err := e.ChangelogFromHistory(context.Background(), HistoryOptions{
		Package: "a",
		From:    "main",
		Version: "1.1.0",
		Write:   true,
	})
	require.NoError(t, err)

	require.Len(t, res.Changelog.Releases, 1)
	r := res.Changelog.Releases[0]
	assert.Equal(t, "1.1.0", r.Version)
	assert.Equal(t, "2024-01-15", r.Date)
	assert.Equal(t, 2, r.Changes.Count())

	assert.Equal(t, filepath.Join(h.root, "packages", "a", "CHANGELOG.md"), res.Path)
	content := testutil.ReadFile(t, res.Path)
	assert.Contains(t, content, "## [1.1.0] - 2024-01-15")
	assert.Contains(t, content, "- add X (api) (["+h.feat.ShortHash+"](https://github.com/acme/tools/commit/"+h.feat.Hash+")) ([#42](https://github.com/acme/tools/issues/42))")
	assert.Contains(t, content, "### Fixed\n- handle Y")
}

func TestChangelogFromHistory_UnknownPackage(t *testing.T) {
	t.Parallel()

	h := newHistory(t)
	e := newEngine(t, h.root, nil, WithVcs(h.repo))

	_, err := e.ChangelogFromHistory(context.Background(), HistoryOptions{Package: "zzz"})
	assert.ErrorIs(t, err, clierrors.ErrNotFound)
}
