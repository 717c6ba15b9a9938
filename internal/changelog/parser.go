package changelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// ValidationError represents a changelog parse or validation error with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Is reports the error as a validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

var (
	versionHeaderPattern = regexp.MustCompile(`^## \[([^\]]+)\](?: - (\S+))?\s*$`)
	linkDefPattern       = regexp.MustCompile(`^\[[^\]]+\]: \S`)
	attributionPattern   = regexp.MustCompile(`^All notable changes to (.+) will be documented in this file\.$`)
	datePattern          = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	issueSuffix  = regexp.MustCompile(` \(\[#(\d+)\]\([^()\s]*\)\)$`)
	commitSuffix = regexp.MustCompile(` \(\[([0-9a-fA-F]{4,40})\]\(([^()\s]*)\)\)$`)
	scopeSuffix  = regexp.MustCompile(` \(([^()\\]+)\)$`)
)

// Load reads and parses a CHANGELOG.md file.
func Load(path string, opts Options) (*Changelog, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("opening changelog %s: %w: %w", path, clierrors.ErrNotFound, err)
		}
		return nil, fmt.Errorf("opening changelog %s: %w: %w", path, clierrors.ErrIO, err)
	}
	defer f.Close()

	return ParseMarkdown(f, opts)
}

// ParseMarkdown reads Keep a Changelog Markdown. It is the inverse of
// RenderMarkdown for documents rendered with the same options: the section,
// description and breaking flag of every entry are recovered. An empty
// Unreleased block is dropped. Free text and link definitions are ignored.
func ParseMarkdown(r io.Reader, opts Options) (*Changelog, error) {
	p := &mdParser{opts: opts, log: &Changelog{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.feed(strings.TrimRight(sc.Text(), "\r")); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading changelog: %w: %w", clierrors.ErrIO, err)
	}
	p.flush()
	p.closeRelease()
	return p.log, nil
}

type mdParser struct {
	opts    Options
	log     *Changelog
	line    int
	release *Release
	section Section
	pending string
	open    bool
}

func (p *mdParser) errorf(format string, args ...any) error {
	return &ValidationError{Field: fmt.Sprintf("line %d", p.line), Message: fmt.Sprintf(format, args...)}
}

func (p *mdParser) feed(line string) error {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "# "):
		p.flush()
	case p.release == nil && attributionPattern.MatchString(trimmed):
		if m := attributionPattern.FindStringSubmatch(trimmed); m[1] != "this project" {
			p.log.Package = m[1]
		}
	case strings.HasPrefix(line, "## "):
		p.flush()
		return p.startRelease(line)
	case strings.HasPrefix(line, "### "):
		p.flush()
		if p.release == nil {
			return p.errorf("section %q outside of a version block", trimmed)
		}
		s, ok := ParseSection(strings.TrimSpace(strings.TrimPrefix(line, "### ")))
		if !ok {
			return p.errorf("unknown section %q", trimmed)
		}
		p.section = s
	case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
		p.flush()
		if p.release == nil || p.section == "" {
			// list items in the intro are prose
			return nil
		}
		p.pending = strings.TrimSpace(line[2:])
		p.open = true
	case trimmed == "":
		p.flush()
	case p.open && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")):
		p.pending += " " + trimmed
	case linkDefPattern.MatchString(line):
		p.flush()
	default:
		p.flush()
	}
	return nil
}

func (p *mdParser) startRelease(line string) error {
	p.closeRelease()
	m := versionHeaderPattern.FindStringSubmatch(line)
	if m == nil {
		return p.errorf("malformed version header %q", line)
	}
	version := strings.TrimSpace(m[1])
	if strings.EqualFold(version, UnreleasedVersion) {
		version = UnreleasedVersion
	}
	p.release = &Release{Version: version, Date: m[2]}
	p.section = ""
	return nil
}

func (p *mdParser) closeRelease() {
	if p.release == nil {
		return
	}
	if !(p.release.IsUnreleased() && p.release.Changes.IsEmpty()) {
		p.log.Releases = append(p.log.Releases, *p.release)
	}
	p.release = nil
	p.section = ""
}

func (p *mdParser) flush() {
	if !p.open {
		return
	}
	p.release.Changes.Add(p.section, ParseEntry(p.pending, p.opts))
	p.pending = ""
	p.open = false
}

// ParseEntry splits an entry line (without the list marker) rendered by
// FormatEntry back into its parts. Segments are stripped from the right.
func ParseEntry(text string, opts Options) Entry {
	var e Entry
	s := strings.TrimSpace(text)

	var refs []string
	for {
		m := issueSuffix.FindStringSubmatch(s)
		if m == nil {
			break
		}
		refs = append([]string{m[1]}, refs...)
		s = s[:len(s)-len(m[0])]
	}
	e.References = refs

	if m := commitSuffix.FindStringSubmatch(s); m != nil {
		e.Commit = m[1]
		if i := strings.LastIndex(m[2], "/commit/"); i >= 0 {
			e.Commit = m[2][i+len("/commit/"):]
		}
		s = s[:len(s)-len(m[0])]
	}
	if opts.Authors {
		if i := strings.LastIndex(s, " by "); i >= 0 {
			e.Author = s[i+len(" by "):]
			s = s[:i]
		}
	}
	if m := scopeSuffix.FindStringSubmatch(s); m != nil {
		e.Scope = m[1]
		s = s[:len(s)-len(m[0])]
	}
	if strings.HasSuffix(s, `\)`) {
		s = s[:len(s)-2] + ")"
	}
	if rest, ok := strings.CutPrefix(s, BreakingPrefix); ok {
		e.Breaking = true
		s = rest
	}
	e.Description = s
	return e
}

// Validate checks that a parsed changelog is well formed: released versions
// are SemVer with a YYYY-MM-DD date, versions are unique, at most one
// Unreleased block exists and no entry is blank.
func Validate(c *Changelog) error {
	unreleasedCount := 0
	seenVersions := make(map[string]bool)

	for i, r := range c.Versions() {
		field := fmt.Sprintf("releases[%d]", i)
		if strings.EqualFold(r, UnreleasedVersion) {
			unreleasedCount++
		} else {
			if _, err := semver.Parse(r); err != nil {
				return &ValidationError{Field: field + ".version", Message: fmt.Sprintf("invalid semver format %q", r)}
			}
			date := c.Releases[i].Date
			if date == "" {
				return &ValidationError{Field: field + ".date", Message: "date is required for released versions"}
			}
			if !datePattern.MatchString(date) {
				return &ValidationError{Field: field + ".date", Message: fmt.Sprintf("invalid date format %q (expected: YYYY-MM-DD)", date)}
			}
		}

		normalized := NormalizeVersion(r)
		if seenVersions[normalized] {
			return &ValidationError{Field: field + ".version", Message: fmt.Sprintf("duplicate version %q", r)}
		}
		seenVersions[normalized] = true

		for _, rec := range c.Releases[i].Records() {
			if strings.TrimSpace(rec.Description) == "" {
				return &ValidationError{Field: field + "." + strings.ToLower(string(rec.Section)), Message: "change entry cannot be empty"}
			}
		}
	}

	if unreleasedCount > 1 {
		return &ValidationError{Field: "releases", Message: "only one 'Unreleased' block is allowed"}
	}
	return nil
}

// NormalizeVersion normalizes a version string by removing the "v" prefix.
// This allows accepting both "v0.6.0" and "0.6.0" as input.
func NormalizeVersion(version string) string {
	return strings.TrimPrefix(strings.ToLower(version), "v")
}
