package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/build"
)

// SourceURL is the project source URL.
const SourceURL = "https://github.com/ariel-frischer/bumpkit"

var (
	versionPlain  bool
	versionFormat string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  "Display version, commit, build date, and Go version information for bumpkit",
	Example: `  # Show version info
  bumpkit version

  # Plain output (for scripts)
  bumpkit version --plain`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(versionFormat, FormatText, FormatJSON, FormatYAML); err != nil {
			return err
		}
		info := build.Current()
		out := cmd.OutOrStdout()
		switch {
		case versionFormat != FormatText:
			return writeStructured(out, versionFormat, info)
		case versionPlain:
			printPlainVersion(out, info)
		default:
			printPrettyVersion(out, info)
		}
		return nil
	},
}

func init() {
	versionCmd.GroupID = GroupSetup
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionPlain, "plain", false, "Plain output without formatting")
	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", FormatText, "Output format: text, json, yaml")
}

// printPlainVersion prints a simple version output for scripting
func printPlainVersion(w io.Writer, info build.Info) {
	fmt.Fprintf(w, "bumpkit %s\n", info.Version)
	fmt.Fprintf(w, "commit: %s\n", info.Commit)
	fmt.Fprintf(w, "built: %s\n", info.BuildDate)
	fmt.Fprintf(w, "go: %s\n", info.GoVersion)
	fmt.Fprintf(w, "platform: %s\n", info.Platform)
}

func printPrettyVersion(w io.Writer, info build.Info) {
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	version := info.Version
	if build.IsDevBuild() {
		version += dim(" (development build)")
	}
	fmt.Fprintf(w, "%s %s\n\n", bold("bumpkit"), version)
	fmt.Fprintf(w, "  %-10s %s\n", "Commit", info.Commit)
	fmt.Fprintf(w, "  %-10s %s\n", "Built", info.BuildDate)
	fmt.Fprintf(w, "  %-10s %s\n", "Go", info.GoVersion)
	fmt.Fprintf(w, "  %-10s %s\n", "Platform", info.Platform)
	fmt.Fprintf(w, "\n  %s\n", dim(SourceURL))
}
