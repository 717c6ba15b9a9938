package changelog

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Changelog

All notable changes to @acme/core will be documented in this file.

The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.1.0/),
and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

- a list in the intro is prose

## [Unreleased]

## [2.0.0] - 2024-01-15

Highlights paragraph that is ignored.

### Added
- add X (api) ([abc1234](https://github.com/acme/mono/commit/` + fullHash + `))

### Changed
- **BREAKING**: drop old API ([#9](https://github.com/acme/mono/issues/9)) ([#10](https://github.com/acme/mono/issues/10))
- a long entry that an editor
  wrapped onto two lines

### Fixed
* Y

## [1.0.0] - 2023-12-01

### Added
- first release

[2.0.0]: https://github.com/acme/mono/compare/v1.0.0...v2.0.0
`

func TestParseMarkdown(t *testing.T) {
	t.Parallel()

	log, err := ParseMarkdown(strings.NewReader(sampleDoc), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "@acme/core", log.Package)
	assert.Equal(t, []string{"2.0.0", "1.0.0"}, log.Versions(), "empty unreleased block is dropped")

	r := log.Releases[0]
	assert.Equal(t, "2024-01-15", r.Date)
	require.Len(t, r.Changes.Added, 1)
	assert.Equal(t, Entry{Description: "add X", Scope: "api", Commit: fullHash}, r.Changes.Added[0])

	require.Len(t, r.Changes.Changed, 2)
	assert.Equal(t, Entry{Description: "drop old API", Breaking: true, References: []string{"9", "10"}}, r.Changes.Changed[0])
	assert.Equal(t, "a long entry that an editor wrapped onto two lines", r.Changes.Changed[1].Description)

	require.Len(t, r.Changes.Fixed, 1)
	assert.Equal(t, "Y", r.Changes.Fixed[0].Description)

	assert.Equal(t, 1, log.Releases[1].Changes.Count())
}

func TestParseMarkdown_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		doc     string
		wantMsg string
	}{
		"section before any version": {
			doc:     "# Changelog\n\n### Added\n- x\n",
			wantMsg: "line 3: section \"### Added\" outside of a version block",
		},
		"unknown section": {
			doc:     "## [1.0.0] - 2024-01-01\n\n### Misc\n- x\n",
			wantMsg: "line 3: unknown section \"### Misc\"",
		},
		"malformed header": {
			doc:     "## 1.0.0\n",
			wantMsg: "line 1: malformed version header \"## 1.0.0\"",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMarkdown(strings.NewReader(tt.doc), DefaultOptions())
			require.Error(t, err)
			assert.EqualError(t, err, tt.wantMsg)
			assert.ErrorIs(t, err, clierrors.ErrValidation)
		})
	}
}

func TestParseEntry_Authors(t *testing.T) {
	t.Parallel()

	withAuthors := Options{Authors: true}
	e := ParseEntry("sort by name by Jane Doe", withAuthors)
	assert.Equal(t, "sort by name", e.Description)
	assert.Equal(t, "Jane Doe", e.Author)

	e = ParseEntry("sort by name", DefaultOptions())
	assert.Equal(t, "sort by name", e.Description)
	assert.Empty(t, e.Author)
}

var words = []string{"add", "fix", "parser", "cache", "(beta)", "v2", "support", "for", "the", "API", "#notes", "x-y", "[draft]", "*", "it's"}

func randomEntry(r *rand.Rand) Entry {
	n := 1 + r.Intn(6)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[r.Intn(len(words))]
	}
	e := Entry{Description: strings.Join(parts, " "), Breaking: r.Intn(4) == 0}
	if r.Intn(2) == 0 {
		e.Scope = []string{"api", "core", "cli tools", "deps"}[r.Intn(4)]
	}
	if r.Intn(2) == 0 {
		e.Commit = fmt.Sprintf("%040x", r.Int63())
	}
	if r.Intn(3) == 0 {
		e.Author = []string{"jane", "John Smith", "dev@example.com"}[r.Intn(3)]
	}
	for range r.Intn(3) {
		e.References = append(e.References, fmt.Sprint(1+r.Intn(500)))
	}
	return e
}

func TestRenderParse_RoundTrip(t *testing.T) {
	t.Parallel()

	for seed := range int64(80) {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			t.Parallel()
			r := rand.New(rand.NewSource(seed))

			opts := Options{CommitLinks: r.Intn(2) == 0, IssueLinks: r.Intn(2) == 0, Authors: r.Intn(2) == 0}
			if r.Intn(3) > 0 {
				opts.RepoURL = "https://github.com/acme/mono"
			}

			log := &Changelog{Package: "pkg"}
			for v := 3; v > 0; v-- {
				rel := Release{Version: fmt.Sprintf("%d.0.0", v), Date: fmt.Sprintf("2024-0%d-01", v)}
				for range 1 + r.Intn(8) {
					e := randomEntry(r)
					rel.Changes.Add(Sections()[r.Intn(len(Sections()))], e)
				}
				log.Releases = append(log.Releases, rel)
			}

			doc, err := RenderMarkdownString(log, opts)
			require.NoError(t, err)
			parsed, err := ParseMarkdown(strings.NewReader(doc), opts)
			require.NoError(t, err, doc)

			require.Equal(t, log.Versions(), parsed.Versions())
			for i, want := range log.Releases {
				got := parsed.Releases[i]
				assert.Equal(t, want.Date, got.Date)
				wantRecords, gotRecords := want.Records(), got.Records()
				require.Len(t, gotRecords, len(wantRecords), doc)
				for j := range wantRecords {
					w, g := wantRecords[j], gotRecords[j]
					assert.Equal(t, w.Section, g.Section)
					assert.Equal(t, w.Description, g.Description, doc)
					assert.Equal(t, w.Breaking, g.Breaking)
					assert.Equal(t, w.Scope, g.Scope)
					if opts.Authors {
						assert.Equal(t, w.Author, g.Author)
					}
					if opts.RepoURL != "" && opts.CommitLinks {
						assert.Equal(t, w.Commit, g.Commit)
					}
					if opts.RepoURL != "" && opts.IssueLinks {
						assert.Equal(t, w.References, g.References)
					}
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	entry := Changes{Added: []Entry{{Description: "x"}}}
	tests := map[string]struct {
		releases []Release
		wantErr  string
	}{
		"valid": {
			releases: []Release{
				{Version: UnreleasedVersion, Changes: entry},
				{Version: "1.0.0", Date: "2024-01-01", Changes: entry},
			},
		},
		"bad version": {
			releases: []Release{{Version: "1.0", Date: "2024-01-01", Changes: entry}},
			wantErr:  `releases[0].version: invalid semver format "1.0"`,
		},
		"missing date": {
			releases: []Release{{Version: "1.0.0", Changes: entry}},
			wantErr:  "releases[0].date: date is required for released versions",
		},
		"bad date": {
			releases: []Release{{Version: "1.0.0", Date: "Jan 1", Changes: entry}},
			wantErr:  `releases[0].date: invalid date format "Jan 1" (expected: YYYY-MM-DD)`,
		},
		"duplicate": {
			releases: []Release{
				{Version: "1.0.0", Date: "2024-01-02", Changes: entry},
				{Version: "1.0.0", Date: "2024-01-01", Changes: entry},
			},
			wantErr: `releases[1].version: duplicate version "1.0.0"`,
		},
		"blank entry": {
			releases: []Release{{Version: "1.0.0", Date: "2024-01-01", Changes: Changes{Fixed: []Entry{{Description: " "}}}}},
			wantErr:  "releases[0].fixed: change entry cannot be empty",
		},
		"two unreleased": {
			releases: []Release{
				{Version: UnreleasedVersion, Changes: entry},
				{Version: "Unreleased", Changes: entry},
			},
			wantErr: `releases[1].version: duplicate version "Unreleased"`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&Changelog{Releases: tt.releases})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, FileName), DefaultOptions())
	assert.ErrorIs(t, err, clierrors.ErrNotFound)

	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	log, err := Load(path, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, log.Releases, 2)
}
