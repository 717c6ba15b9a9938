// Package resolver turns pending changesets and the dependency graph into a
// plan of concrete manifest edits.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// Resolve computes the plan for the given pending changesets.
func Resolve(sets []*changeset.Changeset, g *graph.Graph, opts Options) (*Plan, error) {
	merged, err := Merge(sets, g)
	if err != nil {
		return nil, err
	}

	r := &resolution{
		g:       g,
		opts:    opts,
		merged:  merged,
		bumps:   make(map[string]semver.Bump),
		next:    make(map[string]semver.Version),
		reasons: make(map[string]reason),
	}
	if opts.Snapshot {
		if r.opts.SnapshotID == "" {
			r.opts.SnapshotID = semver.UnknownSnapshotID
		}
	}

	switch opts.Strategy {
	case Unified:
		r.unified()
	default:
		r.independent()
	}

	plan := &Plan{
		Strategy:   opts.Strategy,
		Applied:    merged.Applied,
		Changesets: merged.Contributing,
	}
	plan.Updates = r.updates()
	plan.Conflicts = r.conflicts(plan)
	return plan, nil
}

type reason struct {
	kind    ReasonKind
	trigger string
	// triggers are every updated dependency of a propagated package.
	triggers []string
}

type resolution struct {
	g       *graph.Graph
	opts    Options
	merged  *Merged
	bumps   map[string]semver.Bump
	next    map[string]semver.Version
	reasons map[string]reason
}

func (r *resolution) direct(name string) semver.Bump {
	in, ok := r.merged.Intent(name)
	if !ok {
		return semver.BumpNone
	}
	if r.opts.Snapshot && in.Bump != semver.BumpNone {
		return semver.BumpSnapshot
	}
	return in.Bump
}

func (r *resolution) set(name string, b semver.Bump, why reason) {
	pkg, _ := r.g.Package(name)
	r.bumps[name] = b
	r.next[name] = pkg.Version.Bump(b, r.opts.SnapshotID)
	r.reasons[name] = why
}

// independent bumps named packages and propagates to dependents. Packages are
// visited in topological order and the pass repeats until stable so that
// propagation also settles inside cycles.
func (r *resolution) independent() {
	order := r.g.TopologicalOrder()
	for pass := 0; pass <= len(order); pass++ {
		changed := false
		for _, name := range order {
			b := r.direct(name)
			why := reason{kind: ReasonDirect}

			pb, trigger, triggers := r.propagated(name)
			if pb > b {
				b = pb
				why = reason{kind: ReasonDependency, trigger: trigger, triggers: triggers}
				if r.devOnly(name, triggers) {
					why.kind = ReasonDevDependency
				}
			} else if b != semver.BumpNone {
				why.triggers = triggers
			}
			if b == semver.BumpNone {
				continue
			}
			if prev, ok := r.bumps[name]; ok && prev == b && r.reasons[name].trigger == why.trigger {
				continue
			}
			r.set(name, b, why)
			changed = true
		}
		if !changed {
			return
		}
	}
}

// propagated returns the bump name receives from its updated dependencies,
// the dependency that decided it, and every updated dependency.
func (r *resolution) propagated(name string) (semver.Bump, string, []string) {
	best := semver.BumpNone
	var trigger string
	var triggers []string
	for _, dep := range r.g.DependenciesOf(name) {
		if dep == name {
			continue
		}
		db, ok := r.bumps[dep]
		if !ok {
			continue
		}
		triggers = append(triggers, dep)
		b := r.propagationBump(name, dep, db)
		if b > best {
			best, trigger = b, dep
		}
	}
	return best, trigger, triggers
}

func (r *resolution) propagationBump(name, dep string, depBump semver.Bump) semver.Bump {
	if r.opts.Snapshot {
		return semver.BumpSnapshot
	}
	switch r.opts.Propagation {
	case PatchOnly:
		return semver.BumpPatch
	case StrictBreaking:
		if depBump == semver.BumpMajor {
			return semver.BumpMajor
		}
		return semver.BumpPatch
	default:
		if depBump == semver.BumpMajor && !r.accepts(name, dep) {
			return semver.BumpMinor
		}
		return semver.BumpPatch
	}
}

// accepts reports whether every requirement name declares on dep is
// satisfied by dep's planned version.
func (r *resolution) accepts(name, dep string) bool {
	next, ok := r.next[dep]
	if !ok {
		return true
	}
	for _, spec := range r.specsOn(name, dep) {
		if !spec.Accepts(next) {
			return false
		}
	}
	return true
}

func (r *resolution) specsOn(name, dep string) []manifest.DependencySpec {
	pkg, _ := r.g.Package(name)
	var out []manifest.DependencySpec
	for _, spec := range pkg.Dependencies {
		if spec.Name() == dep && !spec.IsExternal() {
			out = append(out, spec)
		}
	}
	return out
}

func (r *resolution) devOnly(name string, triggers []string) bool {
	for _, t := range triggers {
		if !r.g.IsDevOnly(name, t) {
			return false
		}
	}
	return len(triggers) > 0
}

// unified bumps every package to one version derived from the highest
// version in the workspace.
func (r *resolution) unified() {
	overall := semver.BumpNone
	for _, in := range r.merged.Intents {
		overall = overall.Combine(r.direct(in.Name))
	}
	if overall == semver.BumpNone {
		return
	}

	var versions []semver.Version
	for _, name := range r.g.Names() {
		pkg, _ := r.g.Package(name)
		versions = append(versions, pkg.Version)
	}
	target := semver.Max(versions...).Bump(overall, r.opts.SnapshotID)

	for _, name := range r.g.Names() {
		kind := ReasonUnified
		if _, ok := r.merged.Intent(name); ok {
			kind = ReasonDirect
		}
		r.bumps[name] = overall
		r.next[name] = target
		r.reasons[name] = reason{kind: kind}
	}
}

func (r *resolution) updates() []PackageUpdate {
	names := make([]string, 0, len(r.bumps))
	for name := range r.bumps {
		names = append(names, name)
	}

	out := make([]PackageUpdate, 0, len(names))
	for _, name := range r.g.OrderOf(names) {
		pkg, _ := r.g.Package(name)
		why := r.reasons[name]
		u := PackageUpdate{
			Name:              name,
			Path:              pkg.ManifestPath,
			CurrentVersion:    pkg.Version,
			NextVersion:       r.next[name],
			Bump:              r.bumps[name],
			ReasonKind:        why.kind,
			Trigger:           why.trigger,
			DependencyUpdates: r.rewrites(pkg.Dependencies),
		}
		if in, ok := r.merged.Intent(name); ok {
			u.Changes = in.Changes
			u.Changesets = in.Changesets
		}
		u.Reason = r.describe(u)
		out = append(out, u)
	}
	return out
}

// rewrites returns the requirement edits for dependencies on planned packages.
func (r *resolution) rewrites(specs []manifest.DependencySpec) []DependencyUpdate {
	out := []DependencyUpdate{}
	for _, spec := range specs {
		if spec.IsExternal() {
			continue
		}
		next, ok := r.next[spec.Name()]
		if !ok {
			continue
		}
		raw, changed := spec.Rewrite(next)
		if !changed {
			continue
		}
		out = append(out, DependencyUpdate{Name: spec.Key, Kind: spec.Kind, OldReq: spec.Raw, NewReq: raw})
	}
	return out
}

func (r *resolution) describe(u PackageUpdate) string {
	switch u.ReasonKind {
	case ReasonDependency, ReasonDevDependency:
		pkg, _ := r.g.Package(u.Trigger)
		label := "dependency"
		if u.ReasonKind == ReasonDevDependency {
			label = "dev dependency"
		}
		return fmt.Sprintf("%s %s updated %s -> %s", label, u.Trigger, pkg.Version, r.next[u.Trigger])
	case ReasonUnified:
		return "unified release"
	default:
		if len(u.Changesets) == 1 {
			return "changeset " + u.Changesets[0]
		}
		return fmt.Sprintf("%d changesets", len(u.Changesets))
	}
}

func (r *resolution) conflicts(plan *Plan) []Conflict {
	out := []Conflict{}
	if r.opts.Dirty {
		out = append(out, Conflict{
			Kind:    DirtyWorkingDirectory,
			Message: "working directory has uncommitted changes",
		})
	}
	for _, in := range r.merged.Intents {
		if len(in.Changesets) > 1 {
			out = append(out, Conflict{
				Kind:       PendingChangesets,
				Package:    in.Name,
				Changesets: in.Changesets,
				Message: fmt.Sprintf("%s is bumped by %d changesets (%s); using %s",
					in.Name, len(in.Changesets), strings.Join(in.Changesets, ", "), in.Bump),
			})
		}
	}
	for _, u := range plan.Updates {
		if u.ReasonKind != ReasonDependency && u.ReasonKind != ReasonDevDependency {
			continue
		}
		if u.Bump >= semver.BumpMajor {
			continue
		}
		for _, dep := range r.reasons[u.Name].triggers {
			if msg, ok := r.breaking(u.Name, dep); ok {
				out = append(out, Conflict{Kind: PotentialBreakingChange, Package: u.Name, Dependency: dep, Message: msg})
				break
			}
		}
	}
	return out
}

// breaking reports whether name's propagated bump may hide a breaking change
// coming from dep.
func (r *resolution) breaking(name, dep string) (string, bool) {
	if r.bumps[dep] == semver.BumpMajor && !r.accepts(name, dep) {
		return fmt.Sprintf("%s requires %s that no longer accepts %s %s",
			name, r.requirement(name, dep), dep, r.next[dep]), true
	}
	if slices.Contains(r.opts.APIBoundaries, dep) && len(r.g.DependentsOf(name)) > 0 {
		return fmt.Sprintf("%s crosses the API boundary of %s and has %d dependents",
			name, dep, len(r.g.DependentsOf(name))), true
	}
	return "", false
}

func (r *resolution) requirement(name, dep string) string {
	var reqs []string
	for _, spec := range r.specsOn(name, dep) {
		reqs = append(reqs, spec.Raw)
	}
	return strings.Join(reqs, ", ")
}
