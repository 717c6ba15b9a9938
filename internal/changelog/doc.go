// Package changelog builds Keep a Changelog release notes for workspace
// packages.
//
// This package implements:
//   - grouping of conventional commits and changeset entries into sections
//   - Markdown rendering of a release block or a whole CHANGELOG.md
//   - parsing of rendered Markdown back into releases
//   - merging a new release block into an existing CHANGELOG.md
//   - a colored terminal view for the CLI
package changelog
