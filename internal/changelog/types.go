package changelog

import (
	"strings"
	"time"
)

// FileName is the per-package changelog file.
const FileName = "CHANGELOG.md"

// UnreleasedVersion identifies the "Unreleased" block.
const UnreleasedVersion = "unreleased"

// Section is a Keep a Changelog category.
type Section string

const (
	Added      Section = "Added"
	Changed    Section = "Changed"
	Deprecated Section = "Deprecated"
	Removed    Section = "Removed"
	Fixed      Section = "Fixed"
	Security   Section = "Security"
)

// Sections returns the categories in rendering order.
func Sections() []Section {
	return []Section{Added, Changed, Deprecated, Removed, Fixed, Security}
}

// ParseSection matches a section name case-insensitively.
func ParseSection(s string) (Section, bool) {
	for _, sec := range Sections() {
		if strings.EqualFold(s, string(sec)) {
			return sec, true
		}
	}
	return "", false
}

// Entry is one change line.
type Entry struct {
	Type        string    `json:"type" yaml:"type"`
	Description string    `json:"description" yaml:"description"`
	Breaking    bool      `json:"breaking" yaml:"breaking"`
	Commit      string    `json:"commit,omitempty" yaml:"commit,omitempty"`
	Scope       string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	References  []string  `json:"references,omitempty" yaml:"references,omitempty"`
	Date        time.Time `json:"date,omitzero" yaml:"date,omitempty"`
}

// Changes groups entries by section. Empty sections are omitted when rendering.
type Changes struct {
	Added      []Entry `json:"added,omitempty" yaml:"added,omitempty"`
	Changed    []Entry `json:"changed,omitempty" yaml:"changed,omitempty"`
	Deprecated []Entry `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Removed    []Entry `json:"removed,omitempty" yaml:"removed,omitempty"`
	Fixed      []Entry `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	Security   []Entry `json:"security,omitempty" yaml:"security,omitempty"`
}

func (c *Changes) slot(s Section) *[]Entry {
	switch s {
	case Added:
		return &c.Added
	case Deprecated:
		return &c.Deprecated
	case Removed:
		return &c.Removed
	case Fixed:
		return &c.Fixed
	case Security:
		return &c.Security
	default:
		return &c.Changed
	}
}

// Add appends e to section s.
func (c *Changes) Add(s Section, e Entry) {
	p := c.slot(s)
	*p = append(*p, e)
}

// Get returns the entries of section s.
func (c *Changes) Get(s Section) []Entry {
	return *c.slot(s)
}

// IsEmpty returns true if no section has entries.
func (c Changes) IsEmpty() bool {
	return c.Count() == 0
}

// Count returns the total number of entries across all sections.
func (c Changes) Count() int {
	return len(c.Added) +
		len(c.Changed) +
		len(c.Deprecated) +
		len(c.Removed) +
		len(c.Fixed) +
		len(c.Security)
}

// Release is one version block. Date is YYYY-MM-DD and empty for unreleased.
type Release struct {
	Version string  `json:"version" yaml:"version"`
	Date    string  `json:"date,omitempty" yaml:"date,omitempty"`
	Changes Changes `json:"changes" yaml:"changes"`
}

// IsUnreleased returns true if this block holds unreleased changes.
func (r Release) IsUnreleased() bool {
	return strings.EqualFold(r.Version, UnreleasedVersion)
}

// Record is an entry flattened with its version and section, used for
// listing and terminal display.
type Record struct {
	Version string  `json:"version" yaml:"version"`
	Section Section `json:"section" yaml:"section"`
	Entry   `yaml:",inline"`
}

// Records returns every entry of the release in section order.
func (r Release) Records() []Record {
	out := make([]Record, 0, r.Changes.Count())
	for _, s := range Sections() {
		for _, e := range r.Changes.Get(s) {
			out = append(out, Record{Version: r.Version, Section: s, Entry: e})
		}
	}
	return out
}

// Changelog is a package's release history, newest first.
type Changelog struct {
	Package  string    `json:"package" yaml:"package"`
	Releases []Release `json:"releases" yaml:"releases"`
}
