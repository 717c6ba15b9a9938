package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/graph"
)

var (
	graphFormatFlag   string
	graphAffectedFlag []string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the workspace dependency graph",
	Long: `Show packages in execution order (dependencies first, grouped into levels),
dependency cycles with their kind and severity, and dependencies that leave
the workspace.

With --affected, also list every package that would be released when the
named packages change.`,
	Example: `  bumpkit graph
  bumpkit graph --format compact
  bumpkit graph --affected @acme/core --format json`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	graphCmd.GroupID = GroupInspect
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringVarP(&graphFormatFlag, "format", "f", FormatText, "Output format: text, compact, json, yaml")
	graphCmd.Flags().StringSliceVarP(&graphAffectedFlag, "affected", "a", nil, "Packages whose dependents to list")
}

func runGraph(cmd *cobra.Command, args []string) error {
	if err := validateFormat(graphFormatFlag, FormatText, "compact", FormatJSON, FormatYAML); err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	g, err := s.engine.Graph(cmd.Context())
	if err != nil {
		return err
	}

	report := g.Report()
	if len(graphAffectedFlag) > 0 {
		affected, err := g.AffectedBy(graphAffectedFlag)
		if err != nil {
			return err
		}
		report.Affected = affected
	}

	out := cmd.OutOrStdout()
	switch graphFormatFlag {
	case FormatJSON, FormatYAML:
		return writeStructured(out, graphFormatFlag, report)
	case "compact":
		fmt.Fprintln(out, graph.RenderCompact(report))
	default:
		fmt.Fprint(out, graph.RenderASCII(report))
	}
	if len(report.Affected) > 0 {
		fmt.Fprintf(out, "\nAffected by %s:\n  %s\n", strings.Join(graphAffectedFlag, ", "), strings.Join(report.Affected, "\n  "))
	}
	return nil
}
