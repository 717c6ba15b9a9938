package changelog

import (
	"fmt"
	"io"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/vcs"
)

// BreakingPrefix starts the line of a breaking entry.
const BreakingPrefix = "**BREAKING**: "

// Options selects the optional segments of an entry line. Link segments are
// emitted only when RepoURL is set.
type Options struct {
	RepoURL     string `koanf:"repo_url"`
	CommitLinks bool   `koanf:"commit_links"`
	IssueLinks  bool   `koanf:"issue_links"`
	Authors     bool   `koanf:"authors"`
}

// DefaultOptions enables commit and issue links.
func DefaultOptions() Options {
	return Options{CommitLinks: true, IssueLinks: true}
}

func (o Options) repo() string {
	return strings.TrimRight(o.RepoURL, "/")
}

// RenderMarkdown writes a complete CHANGELOG.md: title, attribution, an
// Unreleased block and every release of c.
//
// The function is idempotent - given the same input, it produces identical output.
func RenderMarkdown(c *Changelog, w io.Writer, opts Options) error {
	if err := renderHeader(c.Package, w); err != nil {
		return fmt.Errorf("rendering header: %w", err)
	}

	releases := c.Releases
	if len(releases) == 0 || !releases[0].IsUnreleased() {
		if _, err := io.WriteString(w, "## [Unreleased]\n"); err != nil {
			return err
		}
	}
	for i, r := range releases {
		if i > 0 || !r.IsUnreleased() {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := RenderRelease(&r, w, opts); err != nil {
			return fmt.Errorf("rendering version %s: %w", r.Version, err)
		}
	}
	return nil
}

// RenderMarkdownString is a convenience function that renders to a string.
func RenderMarkdownString(c *Changelog, opts Options) (string, error) {
	var b strings.Builder
	if err := RenderMarkdown(c, &b, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

// renderHeader writes the standard Keep a Changelog header.
func renderHeader(pkg string, w io.Writer) error {
	subject := "this project"
	if pkg != "" {
		subject = pkg
	}
	header := `# Changelog

All notable changes to ` + subject + ` will be documented in this file.

The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.1.0/),
and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

`
	_, err := io.WriteString(w, header)
	return err
}

// RenderRelease writes one version block: the header line followed by every
// non-empty section.
func RenderRelease(r *Release, w io.Writer, opts Options) error {
	if _, err := io.WriteString(w, formatVersionHeader(r)+"\n"); err != nil {
		return err
	}
	for _, s := range Sections() {
		entries := r.Changes.Get(s)
		if len(entries) == 0 {
			continue
		}
		if _, err := io.WriteString(w, "\n### "+string(s)+"\n"); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := io.WriteString(w, "- "+FormatEntry(e, opts)+"\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderReleaseString renders one version block to a string.
func RenderReleaseString(r *Release, opts Options) string {
	var b strings.Builder
	_ = RenderRelease(r, &b, opts) // strings.Builder never fails
	return b.String()
}

// formatVersionHeader formats the version header line.
func formatVersionHeader(r *Release) string {
	if r.IsUnreleased() {
		return "## [Unreleased]"
	}
	if r.Date == "" {
		return fmt.Sprintf("## [%s]", r.Version)
	}
	return fmt.Sprintf("## [%s] - %s", r.Version, r.Date)
}

// FormatEntry renders the text of an entry line without the list marker:
//
//	[**BREAKING**: ]<description>[ (<scope>)][ by <author>][ ([<short>](<repo>/commit/<hash>))][ ([#<n>](<repo>/issues/<n>))...]
func FormatEntry(e Entry, opts Options) string {
	var b strings.Builder
	if e.Breaking {
		b.WriteString(BreakingPrefix)
	}
	b.WriteString(escapeDescription(e.Description))
	if e.Scope != "" {
		fmt.Fprintf(&b, " (%s)", e.Scope)
	}
	if opts.Authors && e.Author != "" {
		fmt.Fprintf(&b, " by %s", strings.Join(strings.Fields(e.Author), " "))
	}
	repo := opts.repo()
	if repo != "" && opts.CommitLinks && e.Commit != "" {
		fmt.Fprintf(&b, " ([%s](%s/commit/%s))", vcs.ShortHash(e.Commit), repo, e.Commit)
	}
	if repo != "" && opts.IssueLinks {
		for _, ref := range e.References {
			fmt.Fprintf(&b, " ([#%s](%s/issues/%s))", ref, repo, ref)
		}
	}
	return b.String()
}

// escapeDescription folds whitespace onto one line and escapes a trailing
// ")" so it is not read back as a scope.
func escapeDescription(d string) string {
	d = strings.Join(strings.Fields(d), " ")
	if strings.HasSuffix(d, ")") {
		d = d[:len(d)-1] + `\)`
	}
	return d
}
