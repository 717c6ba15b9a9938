// Package config provides hierarchical configuration management for bumpkit using koanf.
// Configuration is loaded with priority: environment variables (BUMPKIT_*) > project config
// (.bumpkit/config.yml, or .bumpkit/config.json) > user config (~/.config/bumpkit/config.yml)
// > defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/changelog"
	"github.com/ariel-frischer/bumpkit/internal/commits"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: BUMPKIT_CHANGELOG__REPO_URL sets changelog.repo_url.
const EnvPrefix = "BUMPKIT_"

// ConfigSource tracks where a configuration value came from
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceUser    ConfigSource = "user"
	SourceProject ConfigSource = "project"
	SourceEnv     ConfigSource = "env"
)

// Configuration represents the bumpkit configuration
type Configuration struct {
	// Workspaces overrides the globs of the root package.json "workspaces" field.
	Workspaces []string `koanf:"workspaces" yaml:"workspaces" json:"workspaces"`
	// Strategy is "independent" or "unified".
	Strategy string `koanf:"strategy" yaml:"strategy" json:"strategy" validate:"oneof=independent unified"`
	// Propagation is the bump policy for dependents of bumped packages.
	Propagation string `koanf:"propagation" yaml:"propagation" json:"propagation" validate:"oneof=minor-on-incompatible patch-only strict-breaking cascade"`

	Environments    []string `koanf:"environments" yaml:"environments" json:"environments" validate:"min=1,unique,dive,required"`
	DefaultReleases []string `koanf:"default_releases" yaml:"default_releases" json:"default_releases" validate:"min=1,unique,dive,required"`

	// MaxConcurrentReads bounds manifest reads, VCS queries and changelog writes.
	MaxConcurrentReads int `koanf:"max_concurrent_reads" yaml:"max_concurrent_reads" json:"max_concurrent_reads" validate:"min=1,max=256"`

	// CommitTypes overrides entries of the commit type to bump table.
	CommitTypes map[string]string `koanf:"commit_types" yaml:"commit_types" json:"commit_types"`
	// APIBoundaries lists packages whose public API changes warrant review
	// in every dependent.
	APIBoundaries []string `koanf:"api_boundaries" yaml:"api_boundaries" json:"api_boundaries"`
	// BaseBranch is the default base for drafting changesets from history.
	BaseBranch string `koanf:"base_branch" yaml:"base_branch" json:"base_branch" validate:"required"`

	Changelog ChangelogConfig `koanf:"changelog" yaml:"changelog" json:"changelog"`
	Backups   BackupConfig    `koanf:"backups" yaml:"backups" json:"backups"`
	Watch     WatchConfig     `koanf:"watch" yaml:"watch" json:"watch"`

	// MetricsFile receives apply metrics in Prometheus text format when set.
	MetricsFile string `koanf:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	Verbose     bool   `koanf:"verbose" yaml:"verbose" json:"verbose"`
}

// ChangelogConfig configures CHANGELOG.md generation during apply.
type ChangelogConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	RepoURL     string `koanf:"repo_url" yaml:"repo_url" json:"repo_url" validate:"omitempty,url"`
	CommitLinks bool   `koanf:"commit_links" yaml:"commit_links" json:"commit_links"`
	IssueLinks  bool   `koanf:"issue_links" yaml:"issue_links" json:"issue_links"`
	Authors     bool   `koanf:"authors" yaml:"authors" json:"authors"`
}

// Options returns the entry rendering options.
func (c ChangelogConfig) Options() changelog.Options {
	return changelog.Options{
		RepoURL:     c.RepoURL,
		CommitLinks: c.CommitLinks,
		IssueLinks:  c.IssueLinks,
		Authors:     c.Authors,
	}
}

// BackupConfig configures manifest backups.
type BackupConfig struct {
	KeepAfterSuccess bool `koanf:"keep_after_success" yaml:"keep_after_success" json:"keep_after_success"`
	MaxBackups       int  `koanf:"max_backups" yaml:"max_backups" json:"max_backups" validate:"min=1"`
}

// WatchConfig configures status --watch.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce" yaml:"debounce" json:"debounce" validate:"min=0"`
}

// ResolverOptions converts the strategy settings into resolver options.
func (c *Configuration) ResolverOptions() (resolver.Options, error) {
	strategy, err := resolver.ParseStrategy(c.Strategy)
	if err != nil {
		return resolver.Options{}, err
	}
	propagation, err := resolver.ParsePropagation(c.Propagation)
	if err != nil {
		return resolver.Options{}, err
	}
	return resolver.Options{
		Strategy:      strategy,
		Propagation:   propagation,
		APIBoundaries: c.APIBoundaries,
	}, nil
}

// BumpTable returns the default commit type table with CommitTypes layered on top.
func (c *Configuration) BumpTable() (commits.BumpTable, error) {
	return commits.ParseBumpTable(c.CommitTypes)
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	// ProjectRoot is the workspace root holding .bumpkit/ (default: current directory)
	ProjectRoot string
	// ProjectConfigPath overrides the project config path (default: <root>/.bumpkit/config.yml)
	ProjectConfigPath string
	// UserConfigPath overrides the user config path (default: XDG config dir)
	UserConfigPath string
	// WarningWriter receives warnings (default: os.Stderr)
	WarningWriter io.Writer
	// SkipWarnings suppresses warnings
	SkipWarnings bool
}

// Load loads configuration for the workspace at root from user, project and
// environment sources.
func Load(root string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectRoot: root})
}

// LoadWithOptions loads configuration with custom options
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	warningWriter := getWarningWriter(opts.WarningWriter)

	loadDefaults(k)

	if err := loadUserConfig(k, opts.UserConfigPath); err != nil {
		return nil, err
	}

	if err := loadProjectConfig(k, opts, warningWriter); err != nil {
		return nil, err
	}

	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}

	return finalizeConfig(k)
}

// Defaults returns the configuration built from default values only.
func Defaults() *Configuration {
	k := koanf.New(".")
	loadDefaults(k)
	cfg, err := finalizeConfig(k)
	if err != nil {
		panic(fmt.Sprintf("built-in defaults are invalid: %v", err))
	}
	return cfg
}

// getWarningWriter returns the warning writer or defaults to stderr
func getWarningWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// loadDefaults applies default configuration values
func loadDefaults(k *koanf.Koanf) {
	defaults := GetDefaults()
	for key, value := range defaults {
		k.Set(key, value)
	}
}

// loadUserConfig loads ~/.config/bumpkit/config.yml when it exists.
func loadUserConfig(k *koanf.Koanf, customPath string) error {
	path := customPath
	if path == "" {
		path, _ = UserConfigPath()
	}
	if !fileExists(path) {
		return nil
	}
	if err := loadYAMLConfig(k, path, "user"); err != nil {
		return fmt.Errorf("loading user YAML config: %w", err)
	}
	return nil
}

// loadProjectConfig loads the project config. YAML wins over JSON; when both
// exist the JSON file is ignored with a warning.
func loadProjectConfig(k *koanf.Koanf, opts LoadOptions, warningWriter io.Writer) error {
	yamlPath := opts.ProjectConfigPath
	if yamlPath == "" {
		yamlPath = ProjectConfigPath(opts.ProjectRoot)
	}
	jsonPath := ProjectJSONConfigPath(opts.ProjectRoot)

	yamlExists := fileExists(yamlPath)
	jsonExists := fileExists(jsonPath)

	switch {
	case yamlExists:
		if err := loadYAMLConfig(k, yamlPath, "project"); err != nil {
			return fmt.Errorf("loading project YAML config: %w", err)
		}
		if jsonExists && !opts.SkipWarnings {
			fmt.Fprintf(warningWriter, "Warning: JSON config found at %s (ignored, using %s)\n", jsonPath, yamlPath)
			fmt.Fprintf(warningWriter, "  Run 'bumpkit config migrate' to convert it or remove it.\n\n")
		}
	case jsonExists:
		if err := k.Load(file.Provider(jsonPath), json.Parser()); err != nil {
			return fmt.Errorf("failed to load project config %s: %w", jsonPath, err)
		}
	}
	return nil
}

// loadYAMLConfig validates and loads a YAML config file
func loadYAMLConfig(k *koanf.Koanf, path, configType string) error {
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadEnvironmentConfig loads environment variable overrides
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals and validates the merged configuration.
func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.MetricsFile = expandHomePath(cfg.MetricsFile)

	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts environment variable names to config keys
// Example: BUMPKIT_MAX_CONCURRENT_READS -> max_concurrent_reads,
// BUMPKIT_BACKUPS__MAX_BACKUPS -> backups.max_backups
func envTransform(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
