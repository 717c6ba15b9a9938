package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// palette colors the parts of a rendered error. The zero palette is plain.
type palette struct {
	label, message, category, heading, usage, bullet func(a ...interface{}) string
}

var colorPalette = palette{
	label:    color.New(color.FgRed, color.Bold).SprintFunc(),
	message:  color.New(color.FgRed).SprintFunc(),
	category: color.New(color.FgYellow).SprintFunc(),
	heading:  color.New(color.FgGreen, color.Bold).SprintFunc(),
	usage:    color.New(color.FgCyan).SprintFunc(),
	bullet:   color.New(color.FgGreen).SprintFunc(),
}

func plain(a ...interface{}) string { return fmt.Sprint(a...) }

var plainPalette = palette{label: plain, message: plain, category: plain, heading: plain, usage: plain, bullet: plain}

// categoryHints are shown for errors that carry no remediation of their own.
var categoryHints = map[ErrorCategory][]string{
	Conflict:   {"Run 'bumpkit status' to review the conflicts", "Apply without --fail-on-conflict to release anyway"},
	Corruption: {"Restore the file from version control", "Or restore manifests with 'bumpkit backup restore <id>'"},
	Vcs:        {"Run bumpkit inside a git repository with at least one commit"},
}

// FormatError renders err with colors when the terminal supports them.
func FormatError(err *CLIError) string {
	if err == nil {
		return ""
	}
	return render(err, colorPalette)
}

// FormatErrorPlain renders err without colors.
func FormatErrorPlain(err *CLIError) string {
	if err == nil {
		return ""
	}
	return render(err, plainPalette)
}

// render produces:
//
//	Error [Category]: message
//
//	Usage: ...
//
//	To fix this:
//	  • step
func render(err *CLIError, p palette) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]: %s\n", p.label("Error"), p.category(err.Category.String()), p.message(err.Message))

	if err.Usage != "" {
		fmt.Fprintf(&sb, "\n%s %s\n", p.heading("Usage:"), p.usage(err.Usage))
	}
	if len(err.Remediation) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", p.heading("To fix this:"))
		for _, step := range err.Remediation {
			fmt.Fprintf(&sb, "  %s %s\n", p.bullet("•"), step)
		}
	}
	return sb.String()
}

// FprintError writes the colored rendering of err to w.
func FprintError(w io.Writer, err *CLIError) {
	if err == nil {
		return
	}
	fmt.Fprint(w, FormatError(err))
}

// FormatSimpleError renders any error. A CLIError in the chain is rendered
// as is; other errors get their category from Classify and the default hints
// of that category.
func FormatSimpleError(err error) string {
	if err == nil {
		return ""
	}
	if cliErr := AsCLIError(err); cliErr != nil {
		return FormatError(cliErr)
	}
	category := Classify(err)
	return FormatError(&CLIError{
		Category:    category,
		Message:     err.Error(),
		Remediation: categoryHints[category],
		Err:         err,
	})
}
