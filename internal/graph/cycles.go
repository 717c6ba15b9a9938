package graph

import (
	"sort"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/manifest"
)

// CycleKind classifies a cycle by the dependency sections its edges use.
type CycleKind int

const (
	Production CycleKind = iota
	DevCycle
	OptionalCycle
)

func (k CycleKind) String() string {
	switch k {
	case DevCycle:
		return "dev"
	case OptionalCycle:
		return "optional"
	default:
		return "production"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k CycleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Severity of a cycle diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Cycle is one diagnosed dependency cycle. Path starts at the alphabetically
// first member and does not repeat it at the end.
type Cycle struct {
	Path     []string  `json:"path" yaml:"path"`
	Kind     CycleKind `json:"kind" yaml:"kind"`
	Severity Severity  `json:"severity" yaml:"severity"`
}

// String renders the cycle as "a -> b -> a".
func (c Cycle) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	return strings.Join(append(append([]string(nil), c.Path...), c.Path[0]), " -> ")
}

// DetectCycles reports one cycle per strongly connected component that
// contains a cycle, ordered by the component's first member.
func (g *Graph) DetectCycles() []Cycle {
	var cycles []Cycle
	for _, component := range g.components() {
		if len(component) == 1 {
			if _, self := g.dependsOn[component[0]][component[0]]; !self {
				continue
			}
		}
		path := g.cyclePath(component)
		kind := g.classify(path)
		severity := Error
		if kind != Production {
			severity = Warning
		}
		cycles = append(cycles, Cycle{Path: path, Kind: kind, Severity: severity})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Path[0] < cycles[j].Path[0] })
	return cycles
}

// HasErrorCycles reports whether any production cycle exists.
func (g *Graph) HasErrorCycles() bool {
	for _, c := range g.DetectCycles() {
		if c.Severity == Error {
			return true
		}
	}
	return false
}

// classify computes the cycle kind from the edges along path.
func (g *Graph) classify(path []string) CycleKind {
	allDev, allOptional := true, true
	for i, from := range path {
		to := path[(i+1)%len(path)]
		kinds := g.edgeKinds[edgeKey{from, to}]
		if !kinds.only(manifest.Dev) {
			allDev = false
		}
		if !kinds.only(manifest.Optional) {
			allOptional = false
		}
	}
	switch {
	case allDev:
		return DevCycle
	case allOptional:
		return OptionalCycle
	default:
		return Production
	}
}

// cyclePath finds a cycle through the alphabetically first member of a
// strongly connected component using depth-first search restricted to it.
func (g *Graph) cyclePath(component []string) []string {
	members := make(map[string]struct{}, len(component))
	for _, n := range component {
		members[n] = struct{}{}
	}
	start := component[0]
	visited := make(map[string]bool)
	if path := g.cycleDFS(start, start, members, visited, nil); path != nil {
		return path
	}
	return []string{start}
}

func (g *Graph) cycleDFS(id, start string, members map[string]struct{}, visited map[string]bool, path []string) []string {
	visited[id] = true
	path = append(path, id)

	for _, dep := range g.DependenciesOf(id) {
		if _, ok := members[dep]; !ok {
			continue
		}
		if dep == start {
			return path
		}
		if !visited[dep] {
			if found := g.cycleDFS(dep, start, members, visited, path); found != nil {
				return found
			}
		}
	}
	return nil
}

// components returns the strongly connected components of the graph using
// Tarjan's algorithm. Members of each component are sorted.
func (g *Graph) components() [][]string {
	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
		out      [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.DependenciesOf(v) {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		if lowlinks[v] == indices[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			sort.Strings(component)
			out = append(out, component)
		}
	}

	for _, name := range g.names {
		if _, seen := indices[name]; !seen {
			strongConnect(name)
		}
	}
	return out
}
