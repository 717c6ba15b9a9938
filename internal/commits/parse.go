// Package commits parses Conventional Commits messages and maps them to
// version bumps.
package commits

import (
	"regexp"
	"slices"
	"strings"
)

// TypeOther is assigned to commits that do not follow the grammar.
const TypeOther = "other"

// Breaking change footer keys.
const (
	BreakingChangeKey    = "BREAKING CHANGE"
	BreakingChangeAltKey = "BREAKING-CHANGE"
)

// Footer is one trailer of a commit message.
type Footer struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ConventionalCommit is a parsed commit message.
type ConventionalCommit struct {
	Type        string   `json:"type" yaml:"type"`
	Scope       string   `json:"scope,omitempty" yaml:"scope,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Body        string   `json:"body,omitempty" yaml:"body,omitempty"`
	Footers     []Footer `json:"footers,omitempty" yaml:"footers,omitempty"`
	Breaking    bool     `json:"breaking" yaml:"breaking"`
	// BreakingNote is the text of the first breaking change footer.
	BreakingNote string `json:"breaking_note,omitempty" yaml:"breaking_note,omitempty"`
	// References are issue numbers without the leading "#".
	References []string `json:"references,omitempty" yaml:"references,omitempty"`
}

var (
	headerPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*)(?:\(([^()\r\n]*)\))?(!)?: (.*\S.*)$`)
	footerPattern = regexp.MustCompile(`^(BREAKING CHANGE|BREAKING-CHANGE|[A-Za-z][A-Za-z0-9-]*)(: | #)(.*)$`)
	issuePattern  = regexp.MustCompile(`(?:^|[^\w&])#(\d+)\b`)
)

// referenceKeys are footer keys whose values name issues.
var referenceKeys = []string{"refs", "ref", "references", "closes", "close", "closed", "fixes", "fix", "fixed", "resolves", "resolve", "resolved"}

// Parse parses a commit message. ok is false when the header does not follow
// the Conventional Commits grammar.
func Parse(message string) (ConventionalCommit, bool) {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	header, rest, _ := strings.Cut(strings.TrimLeft(message, "\n"), "\n")
	m := headerPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return ConventionalCommit{}, false
	}

	c := ConventionalCommit{
		Type:        strings.ToLower(m[1]),
		Scope:       strings.TrimSpace(m[2]),
		Description: strings.TrimSpace(m[4]),
		Breaking:    m[3] == "!",
	}

	lines := strings.Split(strings.Trim(rest, "\n"), "\n")
	if len(lines) == 1 && strings.TrimSpace(lines[0]) == "" {
		lines = nil
	}
	start := footerStart(lines)
	c.Body = strings.TrimSpace(strings.Join(lines[:start], "\n"))
	c.Footers = parseFooters(lines[start:])

	for _, f := range c.Footers {
		if f.Key == BreakingChangeKey || f.Key == BreakingChangeAltKey {
			c.Breaking = true
			if c.BreakingNote == "" {
				c.BreakingNote = f.Value
			}
		}
	}
	if c.BreakingNote == "" && m[3] == "!" {
		c.BreakingNote = c.Description
	}
	c.References = references(c)
	return c, true
}

// IsBreakingKey reports whether key marks a breaking change footer.
func IsBreakingKey(key string) bool {
	return key == BreakingChangeKey || key == BreakingChangeAltKey
}

// Footer returns the value of the first footer with key, compared
// case-insensitively.
func (c ConventionalCommit) Footer(key string) (string, bool) {
	for _, f := range c.Footers {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return "", false
}

// footerStart returns the index of the first line of the trailing footer
// block. Footers begin a paragraph, and every later paragraph must also open
// with a footer token.
func footerStart(lines []string) int {
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		if i > 0 && strings.TrimSpace(lines[i-1]) != "" {
			continue
		}
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if !footerPattern.MatchString(lines[i]) {
			break
		}
		start = i
	}
	return start
}

func parseFooters(lines []string) []Footer {
	var footers []Footer
	for _, line := range lines {
		if m := footerPattern.FindStringSubmatch(line); m != nil {
			value := m[3]
			if m[2] == " #" {
				value = "#" + value
			}
			footers = append(footers, Footer{Key: m[1], Value: strings.TrimSpace(value)})
			continue
		}
		if len(footers) == 0 {
			continue
		}
		// continuation of the previous footer value
		last := &footers[len(footers)-1]
		if strings.TrimSpace(line) == "" {
			last.Value += "\n"
		} else {
			last.Value = strings.TrimRight(last.Value, "\n") + "\n" + strings.TrimSpace(line)
		}
	}
	for i := range footers {
		footers[i].Value = strings.TrimSpace(footers[i].Value)
	}
	return footers
}

func references(c ConventionalCommit) []string {
	var refs []string
	add := func(text string) {
		for _, m := range issuePattern.FindAllStringSubmatch(text, -1) {
			if !slices.Contains(refs, m[1]) {
				refs = append(refs, m[1])
			}
		}
	}
	add(c.Description)
	for _, f := range c.Footers {
		if !slices.Contains(referenceKeys, strings.ToLower(f.Key)) {
			continue
		}
		for _, part := range strings.FieldsFunc(f.Value, func(r rune) bool { return r == ',' || r == ' ' }) {
			part = strings.TrimPrefix(part, "#")
			if part != "" && strings.Trim(part, "0123456789") == "" && !slices.Contains(refs, part) {
				refs = append(refs, part)
			}
		}
	}
	return refs
}
