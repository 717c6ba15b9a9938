// Package graph builds the internal dependency graph of a workspace and
// answers ordering, cycle and impact questions about it.
package graph

import (
	"fmt"
	"sort"
	"sync"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
)

// MissingWorkspaceTargetError reports a workspace: dependency on a package
// that is not part of the workspace.
type MissingWorkspaceTargetError struct {
	Package    string
	Dependency string
}

// Error implements the error interface.
func (e *MissingWorkspaceTargetError) Error() string {
	return fmt.Sprintf("%s depends on %s through the workspace protocol, but no such workspace package exists",
		e.Package, e.Dependency)
}

// Is reports the error as a validation failure.
func (e *MissingWorkspaceTargetError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// UnknownPackageError reports a lookup of a name outside the graph.
type UnknownPackageError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("package %q is not part of the workspace", e.Name)
}

// Is reports the error as a failed lookup.
func (e *UnknownPackageError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// kindSet is a bitmask of manifest.DepKind values.
type kindSet uint8

func (s kindSet) with(k manifest.DepKind) kindSet { return s | 1<<uint(k) }
func (s kindSet) only(k manifest.DepKind) bool    { return s == 1<<uint(k) }

func (s kindSet) kinds() []manifest.DepKind {
	var out []manifest.DepKind
	for _, k := range manifest.Sections {
		if s&(1<<uint(k)) != 0 {
			out = append(out, k)
		}
	}
	return out
}

type edgeKey struct{ from, to string }

// ExternalDependency is a dependency that leaves the workspace.
type ExternalDependency struct {
	Package string
	Spec    manifest.DependencySpec
}

// Graph is the internal dependency graph. It is immutable after Build apart
// from the memoised transitive dependent sets.
type Graph struct {
	packages     map[string]*workspace.Package
	names        []string
	dependsOn    map[string]map[string]struct{}
	dependencyOf map[string]map[string]struct{}
	edgeKinds    map[edgeKey]kindSet
	externals    []ExternalDependency

	mu         sync.Mutex
	transitive map[string][]string
	levels     [][]string
}

// Build constructs the graph. A dependency is internal when its resolved
// name is a workspace package; workspace: targets must exist.
func Build(pkgs []*workspace.Package) (*Graph, error) {
	g := &Graph{
		packages:     make(map[string]*workspace.Package, len(pkgs)),
		dependsOn:    make(map[string]map[string]struct{}, len(pkgs)),
		dependencyOf: make(map[string]map[string]struct{}, len(pkgs)),
		edgeKinds:    make(map[edgeKey]kindSet),
		transitive:   make(map[string][]string),
	}
	for _, p := range pkgs {
		g.packages[p.Name] = p
		g.names = append(g.names, p.Name)
		g.dependsOn[p.Name] = make(map[string]struct{})
		g.dependencyOf[p.Name] = make(map[string]struct{})
	}
	sort.Strings(g.names)

	for _, name := range g.names {
		p := g.packages[name]
		for _, dep := range p.Dependencies {
			target := dep.Name()
			_, internal := g.packages[target]
			switch {
			case dep.IsExternal():
				g.externals = append(g.externals, ExternalDependency{Package: name, Spec: dep})
			case dep.Target.Kind == manifest.TargetWorkspace && !internal:
				return nil, &MissingWorkspaceTargetError{Package: name, Dependency: target}
			case !internal:
				g.externals = append(g.externals, ExternalDependency{Package: name, Spec: dep})
			default:
				g.addEdge(name, target, dep.Kind)
			}
		}
	}
	return g, nil
}

func (g *Graph) addEdge(from, to string, kind manifest.DepKind) {
	g.dependsOn[from][to] = struct{}{}
	g.dependencyOf[to][from] = struct{}{}
	key := edgeKey{from, to}
	g.edgeKinds[key] = g.edgeKinds[key].with(kind)
}

// Names returns every package name in alphabetical order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Package returns the package record for name.
func (g *Graph) Package(name string) (*workspace.Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Has reports whether name is in the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.packages[name]
	return ok
}

// DependenciesOf returns the direct internal dependencies of name, sorted.
func (g *Graph) DependenciesOf(name string) []string {
	return sortedKeys(g.dependsOn[name])
}

// DependentsOf returns the packages that depend directly on name, sorted.
func (g *Graph) DependentsOf(name string) []string {
	return sortedKeys(g.dependencyOf[name])
}

// EdgeKinds returns the sections in which from declares to, or nil when
// there is no internal edge.
func (g *Graph) EdgeKinds(from, to string) []manifest.DepKind {
	return g.edgeKinds[edgeKey{from, to}].kinds()
}

// IsDevOnly reports whether from depends on to only through devDependencies.
func (g *Graph) IsDevOnly(from, to string) bool {
	return g.edgeKinds[edgeKey{from, to}].only(manifest.Dev)
}

// Externals returns dependencies that leave the workspace, ordered by
// package name and then declaration order.
func (g *Graph) Externals() []ExternalDependency {
	return append([]ExternalDependency(nil), g.externals...)
}

// TransitiveDependents returns every package that reaches name through
// internal edges, excluding name itself. Results are memoised per graph.
func (g *Graph) TransitiveDependents(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.transitive[name]; ok {
		return append([]string(nil), cached...)
	}

	seen := map[string]struct{}{name: {}}
	queue := []string{name}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range sortedKeys(g.dependencyOf[current]) {
			if _, ok := seen[dependent]; ok {
				continue
			}
			seen[dependent] = struct{}{}
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	sort.Strings(out)
	g.transitive[name] = out
	return append([]string(nil), out...)
}

// AffectedBy returns changed plus every transitive dependent of changed, sorted.
func (g *Graph) AffectedBy(changed []string) ([]string, error) {
	set := make(map[string]struct{})
	for _, name := range changed {
		if !g.Has(name) {
			return nil, &UnknownPackageError{Name: name}
		}
		set[name] = struct{}{}
		for _, d := range g.TransitiveDependents(name) {
			set[d] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
