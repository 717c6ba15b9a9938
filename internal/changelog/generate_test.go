package changelog

import (
	"testing"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/commits"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var releaseDate = time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

func analyzed(t *testing.T, messages map[string]string, order ...string) []commits.Change {
	t.Helper()
	list := make([]vcs.Commit, 0, len(order))
	for i, hash := range order {
		msg, ok := messages[hash]
		require.True(t, ok, hash)
		list = append(list, vcs.Commit{
			Hash:       hash,
			ShortHash:  vcs.ShortHash(hash),
			AuthorName: "Dev",
			AuthorDate: releaseDate.Add(-time.Duration(i) * time.Hour),
			Message:    msg,
		})
	}
	return commits.NewAnalyzer().Analyze(list)
}

func TestGenerate_GroupsCommitsBySection(t *testing.T) {
	t.Parallel()

	changes := analyzed(t, map[string]string{
		"abc1234": "feat(api): add X",
		"def5678": "fix: Y",
		"aaa0000": "feat!: drop old API\n\nBREAKING CHANGE: the v1 endpoints are gone",
	}, "abc1234", "def5678", "aaa0000")

	log := Generate("@acme/core", "2.0.0", releaseDate, changes)
	require.Len(t, log.Releases, 1)

	got := RenderReleaseString(&log.Releases[0], DefaultOptions())
	want := "## [2.0.0] - 2024-01-15\n" +
		"\n### Added\n" +
		"- add X (api)\n" +
		"\n### Changed\n" +
		"- **BREAKING**: drop old API\n" +
		"\n### Fixed\n" +
		"- Y\n"
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "### Deprecated")
	assert.NotContains(t, got, "### Removed")
	assert.NotContains(t, got, "### Security")
}

func TestSectionFor(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		changeType string
		breaking   bool
		security   bool
		want       Section
	}{
		"feat":               {changeType: "feat", want: Added},
		"breaking feat":      {changeType: "feat", breaking: true, want: Changed},
		"breaking fix":       {changeType: "fix", breaking: true, want: Changed},
		"fix":                {changeType: "fix", want: Fixed},
		"perf":               {changeType: "perf", want: Changed},
		"docs":               {changeType: "docs", want: Changed},
		"chore":              {changeType: "chore", want: Changed},
		"other":              {changeType: commits.TypeOther, want: Changed},
		"deprecation":        {changeType: "deprecate", want: Deprecated},
		"removal":            {changeType: "removed", want: Removed},
		"security type":      {changeType: "security", want: Security},
		"security footer":    {changeType: "fix", security: true, want: Security},
		"uppercase type":     {changeType: "FEAT", want: Added},
		"unknown type":       {changeType: "wip", want: Changed},
		"breaking beats sec": {changeType: "fix", breaking: true, security: true, want: Changed},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SectionFor(tt.changeType, tt.breaking, tt.security))
		})
	}
}

func TestFromCommit_CarriesMetadata(t *testing.T) {
	t.Parallel()

	changes := analyzed(t, map[string]string{
		"0123456789abcdef0123456789abcdef01234567": "fix(auth): reject expired tokens (#42)\n\nSecurity: CVE pending\nRefs: #7",
	}, "0123456789abcdef0123456789abcdef01234567")

	section, e := FromCommit(changes[0])
	assert.Equal(t, Security, section)
	assert.Equal(t, "fix", e.Type)
	assert.Equal(t, "auth", e.Scope)
	assert.Equal(t, "Dev", e.Author)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", e.Commit)
	assert.Equal(t, []string{"42", "7"}, e.References)
	assert.Equal(t, releaseDate, e.Date)
}

func TestFromChangeEntry(t *testing.T) {
	t.Parallel()

	section, e := FromChangeEntry(changeset.ChangeEntry{
		ChangeType:  "feat",
		Description: "support workspaces",
		Commit:      "abc1234",
	}, "dev@example.com", releaseDate)

	assert.Equal(t, Added, section)
	assert.Equal(t, "support workspaces", e.Description)
	assert.Equal(t, "dev@example.com", e.Author)
	assert.False(t, e.Breaking)
}

func TestNewRelease_StripsPrefix(t *testing.T) {
	t.Parallel()

	r := NewRelease("v1.2.3", time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("x", -3600)))
	assert.Equal(t, "1.2.3", r.Version)
	assert.Equal(t, "2025-01-01", r.Date, "dates are UTC")
}
