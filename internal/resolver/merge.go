package resolver

import (
	"fmt"
	"sort"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// UnknownPackageError reports a changeset entry naming no workspace package.
type UnknownPackageError struct {
	Name        string
	ChangesetID string
}

// Error implements the error interface.
func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("changeset %s names unknown package %q", e.ChangesetID, e.Name)
}

// Is reports the error as a failed lookup.
func (e *UnknownPackageError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// Intent is the merged request for one package across changesets.
type Intent struct {
	Name       string
	Bump       semver.Bump
	Changes    []changeset.ChangeEntry
	Changesets []string
	Commits    []string
}

// Merged is the result of merging pending changesets.
type Merged struct {
	// Intents are sorted by package name.
	Intents []Intent
	// Applied lists changesets with nothing left to apply.
	Applied []string
	// Contributing lists changesets with at least one live entry.
	Contributing []string
}

// Intent returns the intent for name.
func (m *Merged) Intent(name string) (*Intent, bool) {
	i := sort.Search(len(m.Intents), func(i int) bool { return m.Intents[i].Name >= name })
	if i < len(m.Intents) && m.Intents[i].Name == name {
		return &m.Intents[i], true
	}
	return nil, false
}

// Merge folds pending changesets into one intent per package. The effective
// bump is the max over contributing changesets; change entries are
// concatenated by changeset creation time then original order. An entry whose
// package already sits at or beyond its recorded next version is skipped: a
// unified release or a larger bump from a sibling changeset can carry the
// package past the version the entry recorded. Snapshot prereleases sort
// below the release and stay live.
func Merge(sets []*changeset.Changeset, g *graph.Graph) (*Merged, error) {
	ordered := append([]*changeset.Changeset(nil), sets...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID() < ordered[j].ID()
	})

	byName := make(map[string]*Intent)
	out := &Merged{}
	for _, cs := range ordered {
		live := false
		for _, entry := range cs.Packages {
			pkg, ok := g.Package(entry.Name)
			if !ok {
				return nil, &UnknownPackageError{Name: entry.Name, ChangesetID: cs.ID()}
			}
			if pkg.Version.Compare(entry.NextVersion) >= 0 {
				continue
			}
			live = true
			if entry.Bump == semver.BumpNone {
				continue
			}
			in, ok := byName[entry.Name]
			if !ok {
				in = &Intent{Name: entry.Name}
				byName[entry.Name] = in
			}
			in.Bump = in.Bump.Combine(entry.Bump)
			in.Changes = append(in.Changes, entry.Changes...)
			in.Changesets = append(in.Changesets, cs.ID())
			if entry.Reason.Type == changeset.DirectChanges {
				in.Commits = append(in.Commits, entry.Reason.Commits...)
			}
		}
		if live {
			out.Contributing = append(out.Contributing, cs.ID())
		} else {
			out.Applied = append(out.Applied, cs.ID())
		}
	}

	for _, in := range byName {
		out.Intents = append(out.Intents, *in)
	}
	sort.Slice(out.Intents, func(i, j int) bool { return out.Intents[i].Name < out.Intents[j].Name })
	return out, nil
}
