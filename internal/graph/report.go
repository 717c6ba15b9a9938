package graph

import (
	"fmt"
	"strings"
)

// OrderEntry is one package in execution order.
type OrderEntry struct {
	Position     int      `json:"position" yaml:"position"`
	Level        int      `json:"level" yaml:"level"`
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ExternalEntry is one dependency leaving the workspace.
type ExternalEntry struct {
	Package string `json:"package" yaml:"package"`
	Name    string `json:"name" yaml:"name"`
	Section string `json:"section" yaml:"section"`
	Target  string `json:"target" yaml:"target"`
	Spec    string `json:"spec" yaml:"spec"`
}

// Report is a serialisable summary of the graph.
type Report struct {
	Order     []OrderEntry    `json:"order" yaml:"order"`
	Cycles    []Cycle         `json:"cycles" yaml:"cycles"`
	Externals []ExternalEntry `json:"externals" yaml:"externals"`
	Affected  []string        `json:"affected,omitempty" yaml:"affected,omitempty"`
}

// Report summarises order, cycles and external dependencies.
func (g *Graph) Report() Report {
	r := Report{Order: []OrderEntry{}, Cycles: g.DetectCycles(), Externals: []ExternalEntry{}}
	if r.Cycles == nil {
		r.Cycles = []Cycle{}
	}
	position := 1
	for level, names := range g.Levels() {
		for _, name := range names {
			entry := OrderEntry{
				Position: position,
				Level:    level,
				Name:     name,
				Version:  g.packages[name].Version.String(),
			}
			if deps := g.DependenciesOf(name); len(deps) > 0 {
				entry.Dependencies = deps
			}
			r.Order = append(r.Order, entry)
			position++
		}
	}
	for _, ext := range g.externals {
		r.Externals = append(r.Externals, ExternalEntry{
			Package: ext.Package,
			Name:    ext.Spec.Name(),
			Section: ext.Spec.Kind.Section(),
			Target:  ext.Spec.Target.Kind.String(),
			Spec:    ext.Spec.Raw,
		})
	}
	return r
}

// RenderASCII renders a report using portable ASCII characters only.
func RenderASCII(r Report) string {
	if len(r.Order) == 0 {
		return "Workspace has no packages.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Packages: %d  |  Levels: %d  |  Cycles: %d\n\n", len(r.Order), countLevels(r), len(r.Cycles))
	sb.WriteString(renderLevels(r.Order))

	if len(r.Cycles) > 0 {
		sb.WriteString("\nCycles:\n")
		sb.WriteString("-------\n")
		for _, c := range r.Cycles {
			fmt.Fprintf(&sb, "  [%s] %s (%s)\n", c.Severity, c.String(), c.Kind)
		}
	}

	if len(r.Affected) > 0 {
		sb.WriteString("\nAffected:\n")
		sb.WriteString("---------\n")
		for _, name := range r.Affected {
			fmt.Fprintf(&sb, "  %s\n", name)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	return sb.String()
}

func countLevels(r Report) int {
	if len(r.Order) == 0 {
		return 0
	}
	return r.Order[len(r.Order)-1].Level + 1
}

// renderLevels prints one block per level, numbered in execution order.
func renderLevels(order []OrderEntry) string {
	var sb strings.Builder
	for i, entry := range order {
		if i == 0 || order[i-1].Level != entry.Level {
			if i > 0 {
				sb.WriteString("    |\n    v\n")
			}
			fmt.Fprintf(&sb, "[L%d]\n", entry.Level)
		}
		prefix := "  |-"
		if i == len(order)-1 || order[i+1].Level != entry.Level {
			prefix = "  +-"
		}
		line := fmt.Sprintf("%s %d. %s@%s", prefix, entry.Position, entry.Name, entry.Version)
		if len(entry.Dependencies) > 0 {
			line += " --> " + strings.Join(entry.Dependencies, ", ")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func renderLegend() string {
	var sb strings.Builder
	sb.WriteString("Legend:\n")
	sb.WriteString("  N.  = execution order\n")
	sb.WriteString("  --> = depends on\n")
	return sb.String()
}

// RenderCompact generates a single-line representation.
// Format: L0: [a, b] -> L1: [c]
func RenderCompact(r Report) string {
	if len(r.Order) == 0 {
		return "Empty workspace"
	}
	var parts []string
	var current []string
	level := r.Order[0].Level
	for _, e := range r.Order {
		if e.Level != level {
			parts = append(parts, fmt.Sprintf("L%d: [%s]", level, strings.Join(current, ", ")))
			current, level = nil, e.Level
		}
		current = append(current, e.Name)
	}
	parts = append(parts, fmt.Sprintf("L%d: [%s]", level, strings.Join(current, ", ")))
	return strings.Join(parts, " -> ")
}
