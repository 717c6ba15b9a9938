package changelog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// SectionStyle defines the color and icon for a changelog section.
type SectionStyle struct {
	Color *color.Color
	Icon  string
}

// sectionStyles maps sections to their terminal styling.
var sectionStyles = map[Section]SectionStyle{
	Added:      {Color: color.New(color.FgGreen), Icon: "✓"},
	Changed:    {Color: color.New(color.FgBlue), Icon: "~"},
	Deprecated: {Color: color.New(color.FgRed), Icon: "⚠"},
	Removed:    {Color: color.New(color.FgRed), Icon: "✗"},
	Fixed:      {Color: color.New(color.FgYellow), Icon: "⚡"},
	Security:   {Color: color.New(color.FgMagenta), Icon: "🔒"},
}

// FormatOptions controls the terminal output formatting.
type FormatOptions struct {
	Plain    bool // Disable colors and icons
	MaxWidth int  // Maximum line width (0 = auto-detect)
}

// FormatTerminal writes records to the writer with terminal styling.
// Records are grouped by version with color-coded section headers.
func FormatTerminal(records []Record, w io.Writer, opts FormatOptions) error {
	if len(records) == 0 {
		return nil
	}

	width := resolveWidth(opts.MaxWidth)
	for i, group := range groupByVersion(records) {
		if err := formatVersionGroup(group, w, opts, width, i > 0); err != nil {
			return fmt.Errorf("formatting version %s: %w", group.version, err)
		}
	}
	return nil
}

// FormatRelease writes a single release to the writer.
func FormatRelease(r *Release, w io.Writer, opts FormatOptions) error {
	if err := writeVersionHeader(r.Version, r.Date, w, opts); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	width := resolveWidth(opts.MaxWidth)
	for _, s := range Sections() {
		var records []Record
		for _, e := range r.Changes.Get(s) {
			records = append(records, Record{Version: r.Version, Section: s, Entry: e})
		}
		if len(records) == 0 {
			continue
		}
		if err := writeSection(s, records, w, opts, width); err != nil {
			return err
		}
	}
	return nil
}

// versionGroup holds records for a single version.
type versionGroup struct {
	version string
	records []Record
}

// groupByVersion groups records by their version, preserving order.
func groupByVersion(records []Record) []versionGroup {
	var groups []versionGroup
	for _, r := range records {
		if len(groups) == 0 || groups[len(groups)-1].version != r.Version {
			groups = append(groups, versionGroup{version: r.Version})
		}
		last := &groups[len(groups)-1]
		last.records = append(last.records, r)
	}
	return groups
}

func formatVersionGroup(group versionGroup, w io.Writer, opts FormatOptions, width int, addSeparator bool) error {
	if addSeparator {
		fmt.Fprintln(w)
	}
	if err := writeVersionHeader(group.version, "", w, opts); err != nil {
		return err
	}

	bySection := make(map[Section][]Record)
	for _, r := range group.records {
		bySection[r.Section] = append(bySection[r.Section], r)
	}
	for _, s := range Sections() {
		if records, ok := bySection[s]; ok {
			if err := writeSection(s, records, w, opts, width); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeVersionHeader writes the version header line.
func writeVersionHeader(version, date string, w io.Writer, opts FormatOptions) error {
	var header string
	switch {
	case strings.EqualFold(version, UnreleasedVersion):
		header = "Unreleased"
	case date != "":
		header = fmt.Sprintf("v%s (%s)", version, date)
	default:
		header = fmt.Sprintf("v%s", version)
	}

	if opts.Plain {
		_, err := fmt.Fprintf(w, "## %s\n", header)
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	_, err := fmt.Fprintf(w, "## %s\n", bold(header))
	return err
}

func writeSection(s Section, records []Record, w io.Writer, opts FormatOptions, width int) error {
	style := sectionStyles[s]

	if opts.Plain {
		if _, err := fmt.Fprintf(w, "\n### %s\n", s); err != nil {
			return err
		}
	} else {
		colored := style.Color.SprintFunc()
		if _, err := fmt.Fprintf(w, "\n%s %s\n", colored(style.Icon), colored(string(s))); err != nil {
			return err
		}
	}

	for _, r := range records {
		if err := writeEntry(r.Entry, style, w, opts, width); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry writes a single entry with optional wrapping. Links are never
// shown in the terminal.
func writeEntry(e Entry, style SectionStyle, w io.Writer, opts FormatOptions, width int) error {
	prefix := "  - "
	text := FormatEntry(e, Options{})

	if opts.Plain {
		_, err := fmt.Fprintf(w, "%s%s\n", prefix, text)
		return err
	}

	wrapped := wrapText(text, width-len(prefix), "    ")
	colored := style.Color.SprintFunc()
	_, err := fmt.Fprintf(w, "%s%s\n", prefix, colored(wrapped))
	return err
}

// resolveWidth determines the terminal width to use.
func resolveWidth(maxWidth int) int {
	if maxWidth > 0 {
		return maxWidth
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// wrapText wraps text to fit within maxWidth, using indent for continuation lines.
func wrapText(text string, maxWidth int, indent string) string {
	if maxWidth <= 0 || len(text) <= maxWidth {
		return text
	}

	var lines []string
	remaining := text

	for len(remaining) > maxWidth {
		breakPoint := maxWidth
		for i := maxWidth - 1; i > 0; i-- {
			if remaining[i] == ' ' {
				breakPoint = i
				break
			}
		}

		lines = append(lines, remaining[:breakPoint])
		remaining = strings.TrimLeft(remaining[breakPoint:], " ")
	}

	if len(remaining) > 0 {
		lines = append(lines, remaining)
	}

	return strings.Join(lines, "\n"+indent)
}

// FormatSummary returns a brief one-line summary of a record.
func FormatSummary(r Record, opts FormatOptions) string {
	text := truncateText(FormatEntry(r.Entry, Options{}), 60)

	if opts.Plain {
		return fmt.Sprintf("[%s] %s", strings.ToLower(string(r.Section)), text)
	}

	style := sectionStyles[r.Section]
	colored := style.Color.SprintFunc()
	return fmt.Sprintf("%s %s", colored(style.Icon), text)
}

// truncateText truncates text to maxLen, adding ellipsis if needed.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
