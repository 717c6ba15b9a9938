package errors

import "fmt"

// Common error messages for the bumpkit CLI.
// These templates ensure consistent, actionable error messages.

// NotAWorkspace creates an error for a directory without a root package.json.
func NotAWorkspace(root string) *CLIError {
	return &CLIError{
		Category: Configuration,
		Message:  fmt.Sprintf("no package.json found in %s", root),
		Remediation: []string{
			"Run bumpkit from the monorepo root",
			"Or pass --root <dir> pointing at the directory holding the root package.json",
		},
	}
}

// NoWorkspacePatterns creates an error for a root manifest that declares no workspaces.
func NoWorkspacePatterns(root string) *CLIError {
	return &CLIError{
		Category: Configuration,
		Message:  fmt.Sprintf("%s/package.json declares no workspaces", root),
		Remediation: []string{
			"Add a \"workspaces\" array to the root package.json",
			"Or set 'workspaces' in .bumpkit/config.yml",
		},
	}
}

// NoPendingChangesets creates an informational error used when an apply has nothing to do.
func NoPendingChangesets() *CLIError {
	return &CLIError{
		Category: Runtime,
		Message:  "no pending changesets",
		Remediation: []string{
			"Create one with 'bumpkit changeset add --package <name>:<bump> --message <text>'",
			"Or draft one from commit history with 'bumpkit changeset draft --base main'",
		},
	}
}

// InvalidPackageBump creates an argument error for a malformed --package value.
func InvalidPackageBump(value string) *CLIError {
	return NewArgumentErrorWithUsage(
		fmt.Sprintf("invalid --package value %q", value),
		"bumpkit changeset add --package <name>:<major|minor|patch> --message <text>",
		"Separate the package name and bump with a colon",
		"Example: --package @org/api:minor",
	)
}

// PartialRollback creates the error shown when restoring manifests after a failed
// apply did not complete. The operator must restore by hand.
func PartialRollback(backupID string, cause error) *CLIError {
	return &CLIError{
		Category: IO,
		Message:  fmt.Sprintf("apply failed and rollback was incomplete: %v", cause),
		Remediation: []string{
			fmt.Sprintf("Restore the manifests with 'bumpkit backup restore %s'", backupID),
			"Inspect .pkg-backups/metadata.json for the list of affected files",
		},
		Err: cause,
	}
}
