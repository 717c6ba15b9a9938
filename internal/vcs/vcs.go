// Package vcs defines the narrow version control interface the release
// engine consumes.
package vcs

import (
	"context"
	"fmt"
	"time"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// Commit is one commit as seen by the release engine.
type Commit struct {
	Hash       string    `json:"hash" yaml:"hash"`
	ShortHash  string    `json:"short_hash" yaml:"short_hash"`
	AuthorName string    `json:"author_name" yaml:"author_name"`
	AuthorDate time.Time `json:"author_date" yaml:"author_date"`
	Message    string    `json:"message" yaml:"message"`
}

// Vcs is implemented by version control backends.
type Vcs interface {
	// CurrentSHA returns the full hash of HEAD.
	CurrentSHA(ctx context.Context) (string, error)
	// CommitsBetween returns commits reachable from to but not from from,
	// newest first. An empty from means the full history of to.
	CommitsBetween(ctx context.Context, from, to string) ([]Commit, error)
	// FilesChanged returns slash-separated paths changed in refRange, which is
	// either "a..b" or a single commit compared with its first parent.
	FilesChanged(ctx context.Context, refRange string) ([]string, error)
	// BranchExists reports whether a local or remote-tracking branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)
	// MergeBase returns the best common ancestor of a and b.
	MergeBase(ctx context.Context, a, b string) (string, error)
}

// Error is returned by Vcs implementations.
type Error struct {
	Op     string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("vcs %s: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports the error as a VCS failure.
func (e *Error) Is(target error) bool {
	return target == clierrors.ErrVcs
}

// ShortHash abbreviates a hash to seven characters.
func ShortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// SplitRange splits "a..b" into its ends. A single ref returns ok=false.
func SplitRange(refRange string) (from, to string, ok bool) {
	for i := 0; i+1 < len(refRange); i++ {
		if refRange[i] == '.' && refRange[i+1] == '.' {
			return refRange[:i], trimDot(refRange[i+2:]), true
		}
	}
	return "", refRange, false
}

func trimDot(s string) string {
	if len(s) > 0 && s[0] == '.' {
		return s[1:]
	}
	return s
}
