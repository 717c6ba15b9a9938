package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/output"
	"github.com/ariel-frischer/bumpkit/internal/release"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return invalidFlag("format", format, allowed...)
}

// writeStructured encodes v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func renderStatus(w io.Writer, st *release.Status) {
	fmt.Fprintf(w, "Workspace %s (%d packages)\n\n", st.Root, st.Packages)

	output.PrintSection(w, fmt.Sprintf("Pending changesets (%d)", len(st.Pending)))
	if len(st.Pending) == 0 {
		fmt.Fprintln(w, output.Dim("  none"))
	}
	for _, p := range st.Pending {
		fmt.Fprintf(w, "  %s  %s  [%s]\n", p.ID, strings.Join(p.Packages, ", "), strings.Join(p.Releases, ", "))
	}
	fmt.Fprintln(w)

	renderPlan(w, st.Plan)
	renderCycles(w, st.Cycles)
}

func renderPlan(w io.Writer, plan *resolver.Plan) {
	output.PrintSection(w, fmt.Sprintf("Release plan (%s)", plan.Strategy))
	if plan.Empty() {
		fmt.Fprintln(w, output.Dim("  nothing to release"))
	}
	width := 0
	for _, u := range plan.Updates {
		width = max(width, len(u.Name))
	}
	for _, u := range plan.Updates {
		fmt.Fprintf(w, "  %-*s  %s  %s  %s\n", width, u.Name,
			output.Arrow(u.CurrentVersion.String(), u.NextVersion.String()),
			output.Bump(u.Bump.String()),
			output.Dim(describeReason(u)))
		for _, d := range u.DependencyUpdates {
			fmt.Fprintf(w, "  %-*s    %s %s\n", width, "", d.Name, output.Arrow(d.OldReq, d.NewReq))
		}
	}
	if len(plan.Applied) > 0 {
		fmt.Fprintf(w, "  %s\n", output.Dim("already applied: "+strings.Join(plan.Applied, ", ")))
	}
	fmt.Fprintln(w)

	if len(plan.Conflicts) > 0 {
		output.PrintSection(w, "Conflicts")
		for _, c := range plan.Conflicts {
			output.PrintWarning(w, fmt.Sprintf("%s: %s", c.Kind, c.Message))
		}
		fmt.Fprintln(w)
	}
}

func describeReason(u resolver.PackageUpdate) string {
	switch u.ReasonKind {
	case resolver.ReasonDependency, resolver.ReasonDevDependency:
		return fmt.Sprintf("%s (%s)", u.ReasonKind, u.Trigger)
	default:
		if u.Reason != "" {
			return fmt.Sprintf("%s (%s)", u.ReasonKind, u.Reason)
		}
		return string(u.ReasonKind)
	}
}

func renderCycles(w io.Writer, cycles []graph.Cycle) {
	if len(cycles) == 0 {
		return
	}
	output.PrintSection(w, "Cycles")
	for _, c := range cycles {
		output.PrintWarning(w, fmt.Sprintf("%s %s cycle: %s", c.Severity, c.Kind, c))
	}
	fmt.Fprintln(w)
}
