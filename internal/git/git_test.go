package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

type fixture struct {
	t     *testing.T
	dir   string
	repo  *git.Repository
	wt    *git.Worktree
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &fixture{t: t, dir: dir, repo: repo, wt: wt, clock: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (f *fixture) commit(message string, files ...string) string {
	f.t.Helper()
	for _, name := range files {
		path := filepath.Join(f.dir, filepath.FromSlash(name))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(f.t, os.WriteFile(path, []byte(message+"\n"), 0o644))
		_, err := f.wt.Add(name)
		require.NoError(f.t, err)
	}
	f.clock = f.clock.Add(time.Minute)
	hash, err := f.wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: "Dev", Email: "dev@example.com", When: f.clock},
		AllowEmptyCommits: true,
	})
	require.NoError(f.t, err)
	return hash.String()
}

func (f *fixture) checkout(branch string, create bool) {
	f.t.Helper()
	require.NoError(f.t, f.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
	}))
}

func (f *fixture) open() *Repo {
	f.t.Helper()
	r, err := Open(f.dir)
	require.NoError(f.t, err)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.commit("chore: init", "packages/a/package.json")

	r, err := Open(filepath.Join(f.dir, "packages", "a"))
	require.NoError(t, err)
	assert.Equal(t, f.dir, r.Root())
	assert.True(t, IsRepository(f.dir))

	_, err = Open(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, clierrors.ErrVcs))
	assert.False(t, IsRepository(t.TempDir()))
}

func TestCurrentSHA(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.open()
	ctx := context.Background()

	_, err := r.CurrentSHA(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, clierrors.ErrVcs))

	want := f.commit("feat: first", "a.txt")
	got, err := r.CurrentSHA(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	branch, err := r.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestCommitsBetween(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c1 := f.commit("chore: init", "README.md")
	c2 := f.commit("feat(api): add X\n\nbody text\n", "packages/a/index.js")
	c3 := f.commit("fix: Y", "packages/b/index.js")
	r := f.open()
	ctx := context.Background()

	tests := map[string]struct {
		from, to string
		want     []string
	}{
		"full history":   {to: "HEAD", want: []string{c3, c2, c1}},
		"empty to":       {want: []string{c3, c2, c1}},
		"from first":     {from: c1, to: "HEAD", want: []string{c3, c2}},
		"short hash":     {from: c2[:7], to: "master", want: []string{c3}},
		"same endpoints": {from: c3, to: c3},
		"relative":       {from: "HEAD~2", to: "HEAD~1", want: []string{c2}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := r.CommitsBetween(ctx, tt.from, tt.to)
			require.NoError(t, err)
			var hashes []string
			for _, c := range got {
				hashes = append(hashes, c.Hash)
			}
			assert.Equal(t, tt.want, hashes)
		})
	}

	all, err := r.CommitsBetween(ctx, "", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "feat(api): add X\n\nbody text", all[1].Message)
	assert.Equal(t, "Dev", all[1].AuthorName)
	assert.Equal(t, c2[:7], all[1].ShortHash)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 2, 0, 0, time.UTC), all[1].AuthorDate)

	_, err = r.CommitsBetween(ctx, "nope", "HEAD")
	assert.True(t, errors.Is(err, clierrors.ErrVcs))
}

func TestFilesChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c1 := f.commit("chore: init", "README.md", "packages/a/package.json")
	c2 := f.commit("feat: a", "packages/a/index.js")
	c3 := f.commit("fix: b", "packages/b/index.js", "README.md")
	r := f.open()
	ctx := context.Background()

	tests := map[string]struct {
		refRange string
		want     []string
	}{
		"root commit":   {refRange: c1, want: []string{"README.md", "packages/a/package.json"}},
		"single commit": {refRange: c2, want: []string{"packages/a/index.js"}},
		"range":         {refRange: c1 + ".." + c3, want: []string{"README.md", "packages/a/index.js", "packages/b/index.js"}},
		"open range":    {refRange: c2 + "..", want: []string{"README.md", "packages/b/index.js"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := r.FilesChanged(ctx, tt.refRange)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeBaseAndBranches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base := f.commit("chore: init", "README.md")
	f.checkout("feature", true)
	feature := f.commit("feat: on feature", "packages/a/index.js")
	f.checkout("master", false)
	f.commit("fix: on master", "packages/b/index.js")
	require.NoError(t, f.repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", "release"), plumbing.NewHash(feature))))

	r := f.open()
	ctx := context.Background()

	got, err := r.MergeBase(ctx, "feature", "master")
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = r.MergeBase(ctx, "master", base)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	for name, want := range map[string]bool{
		"master":         true,
		"feature":        true,
		"release":        true,
		"origin/release": true,
		"nope":           false,
	} {
		exists, err := r.BranchExists(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, exists, name)
	}

	branches, err := r.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []BranchInfo{
		{Name: "feature"},
		{Name: "master"},
		{Name: "release", IsRemote: true, Remote: "origin"},
	}, branches)
}

func TestAddBranchWithDedup(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	var branches []BranchInfo
	branches = addBranchWithDedup(branches, BranchInfo{Name: "main", IsRemote: true, Remote: "origin"}, seen)
	branches = addBranchWithDedup(branches, BranchInfo{Name: "main"}, seen)
	branches = addBranchWithDedup(branches, BranchInfo{Name: "main", IsRemote: true, Remote: "upstream"}, seen)
	assert.Equal(t, []BranchInfo{{Name: "main"}}, branches)
}

func TestIsSSHURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		url  string
		want bool
	}{
		"scp style": {url: "git@github.com:org/repo.git", want: true},
		"ssh":       {url: "ssh://git@host/repo.git", want: true},
		"git+ssh":   {url: "git+ssh://git@host/repo.git", want: true},
		"https":     {url: "https://github.com/org/repo.git", want: false},
		"file":      {url: "/tmp/repo", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isSSHURL(tt.url))
		})
	}
}

func TestFetch_NoRemotes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.commit("chore: init", "README.md")
	ok, err := f.open().Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsDirty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.commit("chore: init", "packages/a/package.json")
	r := f.open()
	ctx := context.Background()

	dirty, err := r.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "untracked.json"), []byte("{}\n"), 0o644))
	dirty, err = r.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty, "untracked files are ignored")

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "packages", "a", "package.json"), []byte("{}\n"), 0o644))
	dirty, err = r.IsDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}
