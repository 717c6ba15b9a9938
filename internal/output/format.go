// Package output provides terminal formatting helpers shared by the CLI
// commands. It depends on no other internal package.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// GetTerminalWidth returns the terminal width, defaulting to 80 if unavailable.
func GetTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// PrintSection prints a bold cyan title followed by a dim rule sized to the
// terminal (capped at 60 columns).
func PrintSection(out io.Writer, title string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	width := min(GetTerminalWidth(), 60)
	fmt.Fprintf(out, "%s\n%s\n", cyan(title), dim(strings.Repeat("─", width)))
}

// PrintSuccess prints a green checkmark and message.
func PrintSuccess(out io.Writer, message string) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", green("✓"), message)
}

// PrintWarning prints a yellow warning marker and message.
func PrintWarning(out io.Writer, message string) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", yellow("!"), message)
}

// PrintDryRun marks output that describes changes not written.
func PrintDryRun(out io.Writer, message string) {
	magenta := color.New(color.FgMagenta).SprintFunc()
	fmt.Fprintf(out, "%s %s\n", magenta("[dry-run]"), message)
}

// Bump colors a bump name: major red, minor yellow, patch green, snapshot magenta.
func Bump(bump string) string {
	switch bump {
	case "major":
		return color.RedString(bump)
	case "minor":
		return color.YellowString(bump)
	case "patch":
		return color.GreenString(bump)
	case "snapshot":
		return color.MagentaString(bump)
	default:
		return bump
	}
}

// Dim renders s faint.
func Dim(s string) string {
	return color.New(color.Faint).Sprint(s)
}

// Arrow renders "from → to" with the target highlighted.
func Arrow(from, to string) string {
	return fmt.Sprintf("%s → %s", from, color.New(color.Bold).Sprint(to))
}
