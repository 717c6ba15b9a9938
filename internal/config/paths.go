package config

import (
	"os"
	"path/filepath"
)

// ProjectDirName is the per-workspace configuration directory.
const ProjectDirName = ".bumpkit"

// UserConfigPath returns the path to the user-level config file.
// This follows the XDG Base Directory Specification:
// - Linux: ~/.config/bumpkit/config.yml
// - macOS: ~/Library/Application Support/bumpkit/config.yml
// - Windows: %APPDATA%\bumpkit\config.yml
//
// If XDG_CONFIG_HOME is set, it will be respected on Linux.
func UserConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// UserConfigDir returns the path to the user-level config directory.
func UserConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "bumpkit"), nil
}

// ProjectConfigPath returns <root>/.bumpkit/config.yml. An empty root means
// the current directory.
func ProjectConfigPath(root string) string {
	return filepath.Join(ProjectConfigDir(root), "config.yml")
}

// ProjectJSONConfigPath returns <root>/.bumpkit/config.json.
func ProjectJSONConfigPath(root string) string {
	return filepath.Join(ProjectConfigDir(root), "config.json")
}

// ProjectConfigDir returns the project-level config directory.
func ProjectConfigDir(root string) string {
	return filepath.Join(root, ProjectDirName)
}
