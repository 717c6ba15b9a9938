package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/vcs"
)

// FakeVcs is an in-memory vcs.Vcs with a linear history.
type FakeVcs struct {
	mu         sync.Mutex
	commits    []vcs.Commit
	files      map[string][]string
	branches   map[string]string
	mergeBases map[string]string
	failures   map[string]error
	calls      []CallRecord
	clock      time.Time
	dirty      bool
}

var _ vcs.Vcs = (*FakeVcs)(nil)

// NewFakeVcs returns an empty history.
func NewFakeVcs() *FakeVcs {
	return &FakeVcs{
		files:      make(map[string][]string),
		branches:   make(map[string]string),
		mergeBases: make(map[string]string),
		failures:   make(map[string]error),
		clock:      time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// AddCommit appends a commit touching files and moves HEAD to it.
func (f *FakeVcs) AddCommit(message string, files ...string) vcs.Commit {
	return f.AddCommitBy("Test Author", message, files...)
}

// AddCommitBy is AddCommit with an explicit author.
func (f *FakeVcs) AddCommitBy(author, message string, files ...string) vcs.Commit {
	f.mu.Lock()
	defer f.mu.Unlock()

	sum := sha1.Sum([]byte(fmt.Sprintf("%d\x00%s\x00%s", len(f.commits), author, message)))
	hash := hex.EncodeToString(sum[:])
	f.clock = f.clock.Add(time.Minute)
	c := vcs.Commit{
		Hash:       hash,
		ShortHash:  vcs.ShortHash(hash),
		AuthorName: author,
		AuthorDate: f.clock,
		Message:    message,
	}
	f.commits = append(f.commits, c)
	f.files[hash] = append([]string(nil), files...)
	return c
}

// SetBranch points a branch at a commit hash.
func (f *FakeVcs) SetBranch(name, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[name] = hash
}

// SetMergeBase overrides the merge base reported for a and b.
func (f *FakeVcs) SetMergeBase(a, b, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeBases[a+"\x00"+b] = hash
	f.mergeBases[b+"\x00"+a] = hash
}

// SetDirty controls what IsDirty reports.
func (f *FakeVcs) SetDirty(dirty bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = dirty
}

// IsDirty reports the value set by SetDirty.
func (f *FakeVcs) IsDirty(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("IsDirty"); err != nil {
		return false, err
	}
	return f.dirty, nil
}

// FailOn makes every later call to method return err.
func (f *FakeVcs) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// Calls returns the recorded calls in order.
func (f *FakeVcs) Calls() []CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CallRecord(nil), f.calls...)
}

func (f *FakeVcs) record(method string, args ...string) error {
	err := f.failures[method]
	f.calls = append(f.calls, CallRecord{Method: method, Args: args, Timestamp: time.Now(), Error: err})
	return err
}

// CurrentSHA implements vcs.Vcs.
func (f *FakeVcs) CurrentSHA(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CurrentSHA"); err != nil {
		return "", err
	}
	if len(f.commits) == 0 {
		return "", &vcs.Error{Op: "rev-parse", Reason: "repository has no commits"}
	}
	return f.commits[len(f.commits)-1].Hash, nil
}

// CommitsBetween implements vcs.Vcs.
func (f *FakeVcs) CommitsBetween(ctx context.Context, from, to string) ([]vcs.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CommitsBetween", from, to); err != nil {
		return nil, err
	}
	return f.between(from, to)
}

func (f *FakeVcs) between(from, to string) ([]vcs.Commit, error) {
	start := -1
	if from != "" {
		idx, err := f.resolve(from)
		if err != nil {
			return nil, err
		}
		start = idx
	}
	end, err := f.resolve(to)
	if err != nil {
		return nil, err
	}
	var out []vcs.Commit
	for i := end; i > start; i-- {
		out = append(out, f.commits[i])
	}
	return out, nil
}

// FilesChanged implements vcs.Vcs.
func (f *FakeVcs) FilesChanged(ctx context.Context, refRange string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FilesChanged", refRange); err != nil {
		return nil, err
	}

	var commits []vcs.Commit
	if from, to, ok := vcs.SplitRange(refRange); ok {
		if to == "" {
			to = "HEAD"
		}
		list, err := f.between(from, to)
		if err != nil {
			return nil, err
		}
		commits = list
	} else {
		idx, err := f.resolve(refRange)
		if err != nil {
			return nil, err
		}
		commits = []vcs.Commit{f.commits[idx]}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, c := range commits {
		for _, file := range f.files[c.Hash] {
			if _, ok := seen[file]; !ok {
				seen[file] = struct{}{}
				out = append(out, file)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// BranchExists implements vcs.Vcs.
func (f *FakeVcs) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("BranchExists", name); err != nil {
		return false, err
	}
	_, ok := f.branches[name]
	return ok, nil
}

// MergeBase implements vcs.Vcs. Without an override the older of the two
// commits is the merge base, which holds for a linear history.
func (f *FakeVcs) MergeBase(ctx context.Context, a, b string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MergeBase", a, b); err != nil {
		return "", err
	}
	if hash, ok := f.mergeBases[a+"\x00"+b]; ok {
		return hash, nil
	}
	ia, err := f.resolve(a)
	if err != nil {
		return "", err
	}
	ib, err := f.resolve(b)
	if err != nil {
		return "", err
	}
	return f.commits[min(ia, ib)].Hash, nil
}

func (f *FakeVcs) resolve(ref string) (int, error) {
	if ref == "" || ref == "HEAD" {
		if len(f.commits) == 0 {
			return 0, &vcs.Error{Op: "resolve", Reason: "repository has no commits"}
		}
		return len(f.commits) - 1, nil
	}
	if hash, ok := f.branches[ref]; ok {
		ref = hash
	}
	for i, c := range f.commits {
		if c.Hash == ref || (len(ref) >= 4 && strings.HasPrefix(c.Hash, ref)) {
			return i, nil
		}
	}
	return 0, &vcs.Error{Op: "resolve", Reason: fmt.Sprintf("unknown revision %q", ref)}
}
