package graph

import "sort"

// Levels groups packages into waves: every package's dependencies sit in an
// earlier wave, or in the same wave when they share a cycle. Waves are
// alphabetical, and members of one cycle are kept next to each other.
func (g *Graph) Levels() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.levels == nil {
		g.levels = g.computeLevels()
	}
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// TopologicalOrder returns every package with dependencies before dependents.
// Cycles never block ordering.
func (g *Graph) TopologicalOrder() []string {
	var out []string
	for _, level := range g.Levels() {
		out = append(out, level...)
	}
	return out
}

// OrderOf filters the topological order down to names.
func (g *Graph) OrderOf(names []string) []string {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []string
	for _, n := range g.TopologicalOrder() {
		if _, ok := want[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Position returns the 1-based execution number of every package.
func (g *Graph) Position() map[string]int {
	out := make(map[string]int, len(g.names))
	for i, n := range g.TopologicalOrder() {
		out[n] = i + 1
	}
	return out
}

// computeLevels runs Kahn's algorithm over the condensation of the graph so
// that strongly connected components are scheduled as a unit.
func (g *Graph) computeLevels() [][]string {
	components := g.components()
	componentOf := make(map[string]int, len(g.names))
	for i, c := range components {
		for _, n := range c {
			componentOf[n] = i
		}
	}

	// pending counts distinct dependency components not yet scheduled.
	pending := make([]int, len(components))
	dependents := make([]map[int]struct{}, len(components))
	for i := range components {
		dependents[i] = make(map[int]struct{})
	}
	for i, c := range components {
		deps := make(map[int]struct{})
		for _, n := range c {
			for dep := range g.dependsOn[n] {
				if j := componentOf[dep]; j != i {
					deps[j] = struct{}{}
				}
			}
		}
		pending[i] = len(deps)
		for j := range deps {
			dependents[j][i] = struct{}{}
		}
	}

	var ready []int
	for i := range components {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	var levels [][]string
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return components[ready[a]][0] < components[ready[b]][0] })
		var level []string
		var next []int
		for _, i := range ready {
			level = append(level, components[i]...)
			for j := range dependents[i] {
				pending[j]--
				if pending[j] == 0 {
					next = append(next, j)
				}
			}
		}
		levels = append(levels, level)
		ready = next
	}
	return levels
}
