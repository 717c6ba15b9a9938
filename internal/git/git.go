// Package git implements vcs.Vcs on top of go-git, so the release engine never
// shells out to the git CLI.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/ariel-frischer/bumpkit/internal/vcs"
)

// debugLogger is a function that logs debug messages when debug mode is enabled.
// By default, it's a no-op. Set it via SetDebugLogger to enable debug output.
var debugLogger func(format string, args ...any)

// SetDebugLogger configures the debug logger for git operations.
// Pass nil to disable debug logging.
func SetDebugLogger(logger func(format string, args ...any)) {
	debugLogger = logger
}

func logDebug(format string, args ...any) {
	if debugLogger != nil {
		debugLogger(format, args...)
	}
}

// DefaultFetchTimeout bounds Fetch when the caller's context has no deadline.
const DefaultFetchTimeout = 60 * time.Second

// Repo is a vcs.Vcs backed by a local repository.
type Repo struct {
	repo   *git.Repository
	root   string
	logger *slog.Logger
}

var _ vcs.Vcs = (*Repo)(nil)

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repo) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Open opens the repository containing path, walking up to find .git.
// If path is empty, the current working directory is used.
func Open(path string, opts ...Option) (*Repo, error) {
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	logDebug("[git] opening repository at %s", path)

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, &vcs.Error{Op: "open", Reason: fmt.Sprintf("no repository at %s", path), Err: err}
	}

	r := &Repo{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if wt, err := repo.Worktree(); err == nil {
		r.root = wt.Filesystem.Root()
	}

	logDebug("[git] repository opened at %s", r.root)
	return r, nil
}

// IsRepository reports whether path is inside a repository.
func IsRepository(path string) bool {
	_, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// Root returns the worktree root, or "" for bare repositories.
func (r *Repo) Root() string {
	return r.root
}

// CurrentSHA implements vcs.Vcs.
func (r *Repo) CurrentSHA(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", &vcs.Error{Op: "rev-parse", Reason: "repository has no commits", Err: err}
		}
		return "", &vcs.Error{Op: "rev-parse", Reason: "reading HEAD", Err: err}
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the checked out branch, or "" in detached HEAD state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head, err := r.repo.Head()
	if err != nil {
		return "", &vcs.Error{Op: "rev-parse", Reason: "reading HEAD", Err: err}
	}
	if !head.Name().IsBranch() {
		logDebug("[git] CurrentBranch: detached HEAD state")
		return "", nil
	}
	return head.Name().Short(), nil
}

// IsDirty reports whether tracked files have uncommitted changes. Untracked
// files, such as freshly added changesets, are ignored.
func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, &vcs.Error{Op: "status", Reason: "repository has no worktree", Err: err}
	}
	status, err := wt.Status()
	if err != nil {
		return false, &vcs.Error{Op: "status", Reason: "reading worktree status", Err: err}
	}
	for _, fs := range status {
		if fs.Worktree == git.Untracked && fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// UserEmail returns user.email from the merged git configuration, falling
// back to user.name.
func (r *Repo) UserEmail() string {
	cfg, err := r.repo.ConfigScoped(config.SystemScope)
	if err != nil {
		return ""
	}
	if cfg.User.Email != "" {
		return cfg.User.Email
	}
	return cfg.User.Name
}

// CommitsBetween implements vcs.Vcs.
func (r *Repo) CommitsBetween(ctx context.Context, from, to string) ([]vcs.Commit, error) {
	if to == "" {
		to = "HEAD"
	}
	tip, err := r.commit(to)
	if err != nil {
		return nil, err
	}

	exclude := make(map[plumbing.Hash]bool)
	if from != "" {
		base, err := r.commit(from)
		if err != nil {
			return nil, err
		}
		iter := object.NewCommitPreorderIter(base, nil, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			exclude[c.Hash] = true
			return nil
		})
		if err != nil {
			return nil, r.wrap("log", "walking "+from, err)
		}
	}

	var out []vcs.Commit
	iter := object.NewCommitPreorderIter(tip, exclude, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if exclude[c.Hash] {
			return nil
		}
		out = append(out, toCommit(c))
		return nil
	})
	if err != nil {
		return nil, r.wrap("log", fmt.Sprintf("walking %s..%s", from, to), err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AuthorDate.After(out[j].AuthorDate)
	})
	logDebug("[git] CommitsBetween %q..%q: %d commits", from, to, len(out))
	return out, nil
}

// FilesChanged implements vcs.Vcs.
func (r *Repo) FilesChanged(ctx context.Context, refRange string) ([]string, error) {
	var fromTree, toTree *object.Tree

	if from, to, ok := vcs.SplitRange(refRange); ok {
		if to == "" {
			to = "HEAD"
		}
		a, err := r.commit(from)
		if err != nil {
			return nil, err
		}
		b, err := r.commit(to)
		if err != nil {
			return nil, err
		}
		if fromTree, err = a.Tree(); err != nil {
			return nil, r.wrap("diff", "reading tree of "+from, err)
		}
		if toTree, err = b.Tree(); err != nil {
			return nil, r.wrap("diff", "reading tree of "+to, err)
		}
	} else {
		c, err := r.commit(refRange)
		if err != nil {
			return nil, err
		}
		if toTree, err = c.Tree(); err != nil {
			return nil, r.wrap("diff", "reading tree of "+refRange, err)
		}
		fromTree = &object.Tree{}
		if c.NumParents() > 0 {
			parent, err := c.Parent(0)
			if err != nil {
				return nil, r.wrap("diff", "reading parent of "+refRange, err)
			}
			if fromTree, err = parent.Tree(); err != nil {
				return nil, r.wrap("diff", "reading parent tree of "+refRange, err)
			}
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, r.wrap("diff", "diffing "+refRange, err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// MergeBase implements vcs.Vcs.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ca, err := r.commit(a)
	if err != nil {
		return "", err
	}
	cb, err := r.commit(b)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", r.wrap("merge-base", fmt.Sprintf("%s and %s", a, b), err)
	}
	if len(bases) == 0 {
		return "", &vcs.Error{Op: "merge-base", Reason: fmt.Sprintf("%s and %s have no common ancestor", a, b)}
	}
	return bases[0].Hash.String(), nil
}

// BranchExists implements vcs.Vcs.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	branches, err := r.Branches(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b.Name == name || (b.IsRemote && b.Remote+"/"+b.Name == name) {
			return true, nil
		}
	}
	return false, nil
}

// BranchInfo contains metadata about a git branch
type BranchInfo struct {
	Name     string
	IsRemote bool
	Remote   string // Remote name (e.g., "origin") if IsRemote is true
}

// Branches returns local and remote-tracking branches, deduplicated with
// local preferred over remote, sorted by name.
func (r *Repo) Branches(ctx context.Context) ([]BranchInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var branches []BranchInfo

	branches, err := collectLocalBranches(r.repo, branches, seen)
	if err != nil {
		return nil, r.wrap("branch", "listing local branches", err)
	}
	branches, err = collectRemoteBranches(r.repo, branches, seen)
	if err != nil {
		return nil, r.wrap("branch", "listing remote branches", err)
	}

	sort.Slice(branches, func(i, j int) bool {
		return branches[i].Name < branches[j].Name
	})
	logDebug("[git] Branches: found %d branches", len(branches))
	return branches, nil
}

// collectLocalBranches iterates local branches and adds them to the list.
func collectLocalBranches(repo *git.Repository, branches []BranchInfo, seen map[string]bool) ([]BranchInfo, error) {
	branchIter, err := repo.Branches()
	if err != nil {
		return nil, err
	}

	err = branchIter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if name == "HEAD" {
			return nil
		}
		branches = addBranchWithDedup(branches, BranchInfo{Name: name}, seen)
		return nil
	})
	return branches, err
}

// collectRemoteBranches iterates remote-tracking branches and adds them to the list.
func collectRemoteBranches(repo *git.Repository, branches []BranchInfo, seen map[string]bool) ([]BranchInfo, error) {
	refIter, err := repo.References()
	if err != nil {
		return nil, err
	}

	err = refIter.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsRemote() {
			return nil
		}
		remote, name, ok := strings.Cut(ref.Name().Short(), "/")
		if !ok || name == "HEAD" {
			return nil
		}
		branches = addBranchWithDedup(branches, BranchInfo{Name: name, IsRemote: true, Remote: remote}, seen)
		return nil
	})
	return branches, err
}

// addBranchWithDedup adds a branch, handling duplicates (prefer local over remote).
func addBranchWithDedup(branches []BranchInfo, info BranchInfo, seen map[string]bool) []BranchInfo {
	key := info.Name

	if seen[key] && !info.IsRemote {
		for i, b := range branches {
			if b.Name == info.Name && b.IsRemote {
				branches[i] = info
				break
			}
		}
		return branches
	}

	if seen[key] {
		return branches
	}

	seen[key] = true
	return append(branches, info)
}

// Fetch fetches every configured remote. Failures are logged and reported
// through the returned flag; only an unusable repository is an error.
func (r *Repo) Fetch(ctx context.Context) (bool, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFetchTimeout)
		defer cancel()
	}

	remotes, err := r.repo.Remotes()
	if err != nil {
		return false, r.wrap("fetch", "listing remotes", err)
	}

	allSucceeded := true
	for _, remote := range remotes {
		if ctx.Err() != nil {
			logDebug("[git] Fetch: context done, stopping")
			return false, nil
		}
		if err := r.fetchRemote(ctx, remote); err != nil {
			r.logger.Warn("fetch failed", slog.String("remote", remote.Config().Name), slog.String("error", err.Error()))
			allSucceeded = false
		}
	}
	return allSucceeded, nil
}

// fetchRemote fetches one remote. SSH remotes are skipped without an agent.
func (r *Repo) fetchRemote(ctx context.Context, remote *git.Remote) error {
	remoteConfig := remote.Config()
	if len(remoteConfig.URLs) == 0 {
		return nil
	}

	url := remoteConfig.URLs[0]
	if isSSHURL(url) && !isSSHAgentAvailable() {
		logDebug("[git] skipping fetch from remote '%s': SSH URL without SSH agent available", remoteConfig.Name)
		return nil
	}

	logDebug("[git] fetching from remote '%s' (%s)", remoteConfig.Name, url)
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteConfig.Name,
		Auth:       getAuthForURL(url),
		Prune:      true,
		RefSpecs:   []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + remoteConfig.Name + "/*")},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// getAuthForURL returns the appropriate authentication method for a remote URL.
// SSH URLs use SSH agent auth, HTTPS URLs use environment credentials.
func getAuthForURL(url string) transport.AuthMethod {
	if isSSHURL(url) {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			logDebug("[git] SSH agent auth failed: %v", err)
			return nil
		}
		return auth
	}

	username := os.Getenv("GIT_USERNAME")
	password := os.Getenv("GIT_PASSWORD")
	if username == "" {
		username = os.Getenv("GITHUB_TOKEN")
		if username != "" {
			password = ""
		}
	}
	if username != "" {
		return &http.BasicAuth{Username: username, Password: password}
	}
	return nil
}

// isSSHURL detects git@ (SCP-style), ssh:// and git+ssh:// remotes.
func isSSHURL(url string) bool {
	return strings.HasPrefix(url, "git@") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasPrefix(url, "git+ssh://")
}

func isSSHAgentAvailable() bool {
	return strings.TrimSpace(os.Getenv("SSH_AUTH_SOCK")) != ""
}

// commit resolves a revision (hash, branch, tag, HEAD~n) to a commit.
func (r *Repo) commit(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, &vcs.Error{Op: "resolve", Reason: fmt.Sprintf("unknown revision %q", rev), Err: err}
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, &vcs.Error{Op: "resolve", Reason: fmt.Sprintf("%q is not a commit", rev), Err: err}
	}
	return c, nil
}

func (r *Repo) wrap(op, reason string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &vcs.Error{Op: op, Reason: reason, Err: err}
}

func toCommit(c *object.Commit) vcs.Commit {
	hash := c.Hash.String()
	return vcs.Commit{
		Hash:       hash,
		ShortHash:  vcs.ShortHash(hash),
		AuthorName: c.Author.Name,
		AuthorDate: c.Author.When.UTC(),
		Message:    strings.TrimRight(c.Message, "\n"),
	}
}
