package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectConfig(t *testing.T, root, name, content string) {
	t.Helper()
	dir := ProjectConfigDir(root)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func loadIsolated(t *testing.T, root string, warnings *bytes.Buffer) (*Configuration, error) {
	t.Helper()
	return LoadWithOptions(LoadOptions{
		ProjectRoot:    root,
		UserConfigPath: filepath.Join(t.TempDir(), "missing.yml"),
		WarningWriter:  warnings,
	})
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := loadIsolated(t, t.TempDir(), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "independent", cfg.Strategy)
	assert.Equal(t, "minor-on-incompatible", cfg.Propagation)
	assert.Equal(t, []string{"dev", "staging", "production"}, cfg.Environments)
	assert.Equal(t, []string{"dev"}, cfg.DefaultReleases)
	assert.Equal(t, 16, cfg.MaxConcurrentReads)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.True(t, cfg.Changelog.Enabled)
	assert.True(t, cfg.Changelog.CommitLinks)
	assert.False(t, cfg.Changelog.Authors)
	assert.Equal(t, 10, cfg.Backups.MaxBackups)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
}

func TestDefaultsMatchLoad(t *testing.T) {
	t.Parallel()

	cfg, err := loadIsolated(t, t.TempDir(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, cfg, Defaults())
}

func TestLoadProjectYAML(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectConfig(t, root, "config.yml", `strategy: unified
propagation: patch-only
workspaces:
  - libs/*
changelog:
  repo_url: https://github.com/acme/tools
  authors: true
commit_types:
  refactor: patch
backups:
  keep_after_success: true
`)

	cfg, err := loadIsolated(t, root, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, []string{"libs/*"}, cfg.Workspaces)
	assert.True(t, cfg.Backups.KeepAfterSuccess)
	assert.Equal(t, 10, cfg.Backups.MaxBackups)

	opts, err := cfg.ResolverOptions()
	require.NoError(t, err)
	assert.Equal(t, resolver.Unified, opts.Strategy)
	assert.Equal(t, resolver.PatchOnly, opts.Propagation)

	table, err := cfg.BumpTable()
	require.NoError(t, err)
	assert.Equal(t, semver.BumpPatch, table["refactor"])
	assert.Equal(t, semver.BumpMinor, table["feat"])

	cl := cfg.Changelog.Options()
	assert.Equal(t, "https://github.com/acme/tools", cl.RepoURL)
	assert.True(t, cl.Authors)
	assert.True(t, cl.IssueLinks)
}

func TestLoadJSONFallbackAndPrecedence(t *testing.T) {
	t.Parallel()

	t.Run("json only", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeProjectConfig(t, root, "config.json", `{"strategy": "unified"}`)

		cfg, err := loadIsolated(t, root, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "unified", cfg.Strategy)
	})

	t.Run("yaml wins with warning", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeProjectConfig(t, root, "config.json", `{"strategy": "unified"}`)
		writeProjectConfig(t, root, "config.yml", "strategy: independent\n")

		var warnings bytes.Buffer
		cfg, err := loadIsolated(t, root, &warnings)
		require.NoError(t, err)
		assert.Equal(t, "independent", cfg.Strategy)
		assert.Contains(t, warnings.String(), "config.json")
	})

	t.Run("user config below project", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		userPath := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(userPath, []byte("strategy: unified\nbase_branch: trunk\n"), 0o644))
		writeProjectConfig(t, root, "config.yml", "strategy: independent\n")

		cfg, err := LoadWithOptions(LoadOptions{ProjectRoot: root, UserConfigPath: userPath, SkipWarnings: true})
		require.NoError(t, err)
		assert.Equal(t, "independent", cfg.Strategy)
		assert.Equal(t, "trunk", cfg.BaseBranch)
	})
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BUMPKIT_STRATEGY", "unified")
	t.Setenv("BUMPKIT_BACKUPS__KEEP_AFTER_SUCCESS", "true")
	t.Setenv("BUMPKIT_CHANGELOG__REPO_URL", "https://example.com/repo")

	root := t.TempDir()
	writeProjectConfig(t, root, "config.yml", "strategy: independent\n")

	cfg, err := loadIsolated(t, root, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "unified", cfg.Strategy)
	assert.True(t, cfg.Backups.KeepAfterSuccess)
	assert.Equal(t, "https://example.com/repo", cfg.Changelog.RepoURL)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content   string
		wantField string
	}{
		"unknown strategy": {
			content:   "strategy: lockstep\n",
			wantField: "strategy",
		},
		"default release outside environments": {
			content:   "environments: [dev]\ndefault_releases: [qa]\n",
			wantField: "default_releases",
		},
		"concurrency out of range": {
			content:   "max_concurrent_reads: 0\n",
			wantField: "max_concurrent_reads",
		},
		"bad repo url": {
			content:   "changelog:\n  repo_url: not a url\n",
			wantField: "changelog.repo_url",
		},
		"snapshot commit type": {
			content:   "commit_types:\n  feat: snapshot\n",
			wantField: "commit_types",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writeProjectConfig(t, root, "config.yml", tt.content)

			_, err := loadIsolated(t, root, &bytes.Buffer{})
			require.Error(t, err)
			assert.ErrorIs(t, err, clierrors.ErrValidation)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestLoadSyntaxError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectConfig(t, root, "config.yml", "strategy: [unclosed\n")

	_, err := loadIsolated(t, root, &bytes.Buffer{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Positive(t, vErr.Line)
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"BUMPKIT_STRATEGY":                "strategy",
		"BUMPKIT_MAX_CONCURRENT_READS":    "max_concurrent_reads",
		"BUMPKIT_BACKUPS__MAX_BACKUPS":    "backups.max_backups",
		"BUMPKIT_CHANGELOG__COMMIT_LINKS": "changelog.commit_links",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, envTransform(in))
		})
	}
}

func TestKnownKeysMatchDefaults(t *testing.T) {
	t.Parallel()

	defaults := GetDefaults()
	for _, key := range SortedKeys() {
		_, ok := defaults[key]
		assert.True(t, ok, "key %s has no default", key)
	}
}

func TestMigrateProjectConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProjectConfig(t, root, "config.json", `{"strategy": "unified", "backups": {"max_backups": 3}}`)

	dry, err := MigrateProjectConfig(root, true)
	require.NoError(t, err)
	assert.True(t, dry.Success)
	assert.NoFileExists(t, ProjectConfigPath(root))

	res, err := MigrateProjectConfig(root, false)
	require.NoError(t, err)
	assert.True(t, res.Success)

	cfg, err := loadIsolated(t, root, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "unified", cfg.Strategy)
	assert.Equal(t, 3, cfg.Backups.MaxBackups)

	require.NoError(t, RemoveLegacyConfig(ProjectJSONConfigPath(root), false))
	assert.FileExists(t, ProjectJSONConfigPath(root)+".bak")

	again, err := MigrateProjectConfig(root, false)
	require.NoError(t, err)
	assert.False(t, again.Success)
}

func TestUnknownKeys(t *testing.T) {
	t.Parallel()

	got := unknownKeys([]string{"strategy", "backups.max_backups", "commit_types.docs", "max_retries", "changelog.colour"})
	assert.Equal(t, []string{"max_retries", "changelog.colour"}, got)
}
