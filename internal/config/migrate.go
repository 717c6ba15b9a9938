package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// MigrationResult describes one config migration.
type MigrationResult struct {
	SourcePath string
	TargetPath string
	// Success is false when there was nothing to migrate.
	Success bool
	DryRun  bool
	Message string
	// UnknownKeys lists keys carried over that no schema entry describes.
	UnknownKeys []string
}

const migratedHeader = "# bumpkit configuration\n# Migrated from .bumpkit/config.json\n\n"

// MigrateProjectConfig converts <root>/.bumpkit/config.json to config.yml.
// An existing config.yml is never overwritten and dry-run writes nothing.
func MigrateProjectConfig(root string, dryRun bool) (*MigrationResult, error) {
	res := &MigrationResult{
		SourcePath: ProjectJSONConfigPath(root),
		TargetPath: ProjectConfigPath(root),
		DryRun:     dryRun,
	}
	if !fileExists(res.SourcePath) {
		res.Message = fmt.Sprintf("No JSON config found at %s", res.SourcePath)
		return res, nil
	}
	if fileExists(res.TargetPath) {
		res.Message = fmt.Sprintf("YAML config already exists at %s (skipped)", res.TargetPath)
		return res, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(res.SourcePath), json.Parser()); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", res.SourcePath, err)
	}
	res.UnknownKeys = unknownKeys(k.Keys())

	if dryRun {
		res.Success = true
		res.Message = fmt.Sprintf("Would migrate %s → %s", res.SourcePath, res.TargetPath)
		return res, nil
	}

	data, err := yaml.Marshal(k.Raw())
	if err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(res.TargetPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(res.TargetPath, append([]byte(migratedHeader), data...), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", res.TargetPath, err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("Migrated %s → %s", res.SourcePath, res.TargetPath)
	return res, nil
}

// mapKeys hold user-chosen sub-keys and are not listed in KnownKeys.
var mapKeys = []string{"commit_types"}

// unknownKeys returns the flattened keys outside the schema.
func unknownKeys(keys []string) []string {
	var out []string
	for _, key := range keys {
		if _, ok := KnownKeys[key]; ok {
			continue
		}
		parent, _, _ := strings.Cut(key, ".")
		if slices.Contains(mapKeys, parent) {
			continue
		}
		out = append(out, key)
	}
	return out
}

// RemoveLegacyConfig renames a migrated JSON config to <path>.bak.
func RemoveLegacyConfig(jsonPath string, dryRun bool) error {
	if dryRun || !fileExists(jsonPath) {
		return nil
	}
	if err := os.Rename(jsonPath, jsonPath+".bak"); err != nil {
		return fmt.Errorf("backing up legacy config: %w", err)
	}
	return nil
}
