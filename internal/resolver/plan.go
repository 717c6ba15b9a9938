package resolver

import (
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// ReasonKind classifies why a package is in a plan.
type ReasonKind string

const (
	ReasonDirect        ReasonKind = "direct"
	ReasonDependency    ReasonKind = "dependency"
	ReasonDevDependency ReasonKind = "dev-dependency"
	ReasonUnified       ReasonKind = "unified"
)

// DependencyUpdate is a rewritten requirement on another planned package.
type DependencyUpdate struct {
	Name   string           `json:"dep_name" yaml:"dep_name"`
	Kind   manifest.DepKind `json:"kind" yaml:"kind"`
	OldReq string           `json:"old_req" yaml:"old_req"`
	NewReq string           `json:"new_req" yaml:"new_req"`
}

// PackageUpdate is one manifest edit.
type PackageUpdate struct {
	Name              string             `json:"name" yaml:"name"`
	Path              string             `json:"path" yaml:"path"`
	CurrentVersion    semver.Version     `json:"current_version" yaml:"current_version"`
	NextVersion       semver.Version     `json:"next_version" yaml:"next_version"`
	Bump              semver.Bump        `json:"bump" yaml:"bump"`
	ReasonKind        ReasonKind         `json:"reason_kind" yaml:"reason_kind"`
	Reason            string             `json:"reason" yaml:"reason"`
	Trigger           string             `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	DependencyUpdates []DependencyUpdate `json:"dependency_updates" yaml:"dependency_updates"`
	// Changes are the change entries of every contributing changeset.
	Changes    []changeset.ChangeEntry `json:"changes,omitempty" yaml:"changes,omitempty"`
	Changesets []string                `json:"changesets,omitempty" yaml:"changesets,omitempty"`
}

// ConflictKind tags a Conflict.
type ConflictKind string

const (
	PendingChangesets       ConflictKind = "PendingChangesets"
	DirtyWorkingDirectory   ConflictKind = "DirtyWorkingDirectory"
	PotentialBreakingChange ConflictKind = "PotentialBreakingChange"
)

// Conflict is a non-fatal finding recorded during resolution.
type Conflict struct {
	Kind       ConflictKind `json:"kind" yaml:"kind"`
	Package    string       `json:"package,omitempty" yaml:"package,omitempty"`
	Dependency string       `json:"dependency,omitempty" yaml:"dependency,omitempty"`
	Changesets []string     `json:"changesets,omitempty" yaml:"changesets,omitempty"`
	Message    string       `json:"message" yaml:"message"`
}

// Plan is the output of Resolve.
type Plan struct {
	Strategy  Strategy        `json:"strategy" yaml:"strategy"`
	Updates   []PackageUpdate `json:"updates" yaml:"updates"`
	Conflicts []Conflict      `json:"conflicts" yaml:"conflicts"`
	// Applied lists changesets whose every package already carries its
	// recorded next version.
	Applied []string `json:"applied,omitempty" yaml:"applied,omitempty"`
	// Changesets lists the ids of every contributing changeset.
	Changesets []string `json:"changesets" yaml:"changesets"`
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Updates) == 0
}

// Update returns the update for name.
func (p *Plan) Update(name string) (*PackageUpdate, bool) {
	for i := range p.Updates {
		if p.Updates[i].Name == name {
			return &p.Updates[i], true
		}
	}
	return nil, false
}

// Names returns the planned package names in plan order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.Updates))
	for i, u := range p.Updates {
		out[i] = u.Name
	}
	return out
}

// ConflictsOf returns the conflicts of one kind.
func (p *Plan) ConflictsOf(kind ConflictKind) []Conflict {
	var out []Conflict
	for _, c := range p.Conflicts {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
