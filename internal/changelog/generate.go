package changelog

import (
	"strings"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/commits"
)

// DateLayout is the release date format used in version headers.
const DateLayout = "2006-01-02"

// securityFooter marks a commit as a security fix regardless of its type.
const securityFooter = "Security"

// SectionFor maps a change onto its section. Breaking changes always land in
// Changed; the table is fixed.
func SectionFor(changeType string, breaking, security bool) Section {
	if breaking {
		return Changed
	}
	if security {
		return Security
	}
	switch strings.ToLower(changeType) {
	case "feat", "feature":
		return Added
	case "fix":
		return Fixed
	case "deprecate", "deprecated":
		return Deprecated
	case "remove", "removed":
		return Removed
	case "security":
		return Security
	default:
		return Changed
	}
}

// FromCommit converts an analyzed commit into an entry and its section.
func FromCommit(c commits.Change) (Section, Entry) {
	_, security := c.Footer(securityFooter)
	e := Entry{
		Type:        c.Type,
		Description: c.Description,
		Breaking:    c.Breaking,
		Commit:      c.Hash,
		Scope:       c.Scope,
		Author:      c.AuthorName,
		References:  c.References,
		Date:        c.AuthorDate,
	}
	return SectionFor(c.Type, c.Breaking, security), e
}

// FromChangeEntry converts a changeset change entry. author is the
// changeset author.
func FromChangeEntry(ce changeset.ChangeEntry, author string, date time.Time) (Section, Entry) {
	e := Entry{
		Type:        ce.ChangeType,
		Description: ce.Description,
		Breaking:    ce.Breaking,
		Commit:      ce.Commit,
		Author:      author,
		Date:        date,
	}
	return SectionFor(ce.ChangeType, ce.Breaking, false), e
}

// NewRelease returns an empty release block for version dated at date.
func NewRelease(version string, date time.Time) Release {
	return Release{Version: strings.TrimPrefix(version, "v"), Date: date.UTC().Format(DateLayout)}
}

// Generate builds the changelog of one package release from analyzed
// commits, in commit order within each section.
func Generate(pkg, version string, date time.Time, changes []commits.Change) *Changelog {
	r := NewRelease(version, date)
	for _, c := range changes {
		s, e := FromCommit(c)
		r.Changes.Add(s, e)
	}
	return &Changelog{Package: pkg, Releases: []Release{r}}
}
