package config

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# bumpkit configuration
# See 'bumpkit config -h' for commands, 'bumpkit config keys' for all options

# Workspace discovery
workspaces: []                        # Overrides package.json "workspaces" when non-empty

# Versioning
strategy: independent                 # independent | unified
propagation: minor-on-incompatible    # minor-on-incompatible | patch-only | strict-breaking
api_boundaries: []                    # Packages whose API changes need review in every dependent

# Changesets
environments:                         # Known release environments
  - dev
  - staging
  - production
default_releases:                     # Environments recorded on new changesets
  - dev
base_branch: main                     # Base branch for 'bumpkit changeset draft'

# Conventional commit types mapped to bumps (major | minor | patch | none)
commit_types: {}                      # e.g. {refactor: patch, docs: none}

# Performance
max_concurrent_reads: 16              # Concurrent manifest reads and changelog writes (1-256)

# Changelogs
changelog:
  enabled: true                       # Write CHANGELOG.md for bumped packages on apply
  repo_url: ""                        # e.g. https://github.com/acme/tools
  commit_links: true                  # Link commit hashes (needs repo_url)
  issue_links: true                   # Link #123 references (needs repo_url)
  authors: false                      # Append " by <author>" to entries

# Backups
backups:
  keep_after_success: false           # Keep manifest backups after a successful apply
  max_backups: 10                     # Oldest backups beyond this count are pruned

# status --watch
watch:
  debounce: 100ms                     # Quiet period before recomputing

# Observability
metrics_file: ""                      # Prometheus textfile written after apply
verbose: false                        # Debug logging
`
}

// GetDefaults returns the default configuration values
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"workspaces":                 []string{},
		"strategy":                   "independent",
		"propagation":                "minor-on-incompatible",
		"environments":               []string{"dev", "staging", "production"},
		"default_releases":           []string{"dev"},
		"max_concurrent_reads":       16,
		"commit_types":               map[string]interface{}{},
		"api_boundaries":             []string{},
		"base_branch":                "main",
		"changelog.enabled":          true,
		"changelog.repo_url":         "",
		"changelog.commit_links":     true,
		"changelog.issue_links":      true,
		"changelog.authors":          false,
		"backups.keep_after_success": false,
		"backups.max_backups":        10,
		"watch.debounce":             "100ms",
		"metrics_file":               "",
		"verbose":                    false,
	}
}
