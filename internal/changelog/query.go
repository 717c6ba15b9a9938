package changelog

import (
	"fmt"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// VersionNotFoundError is returned when a requested version doesn't exist.
type VersionNotFoundError struct {
	Version           string
	AvailableVersions []string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %q not found (available: %s)",
		e.Version, strings.Join(e.AvailableVersions, ", "))
}

// Is reports the error as a failed lookup.
func (e *VersionNotFoundError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// Release retrieves a specific version from the changelog.
// Accepts both "v0.6.0" and "0.6.0" formats (normalizes the input).
func (c *Changelog) Release(version string) (*Release, error) {
	normalized := NormalizeVersion(version)

	for i := range c.Releases {
		if NormalizeVersion(c.Releases[i].Version) == normalized {
			return &c.Releases[i], nil
		}
	}

	return nil, &VersionNotFoundError{
		Version:           version,
		AvailableVersions: c.Versions(),
	}
}

// Latest returns the newest released version, skipping Unreleased.
func (c *Changelog) Latest() (*Release, bool) {
	for i := range c.Releases {
		if !c.Releases[i].IsUnreleased() {
			return &c.Releases[i], true
		}
	}
	return nil, false
}

// Versions returns every version identifier in document order (newest first).
func (c *Changelog) Versions() []string {
	versions := make([]string, len(c.Releases))
	for i, r := range c.Releases {
		versions[i] = r.Version
	}
	return versions
}

// LastN retrieves the N most recent entries across all versions.
// If N is greater than the total number of entries, all entries are returned.
func (c *Changelog) LastN(n int) []Record {
	if n <= 0 {
		return []Record{}
	}

	records := c.Records()
	if len(records) <= n {
		return records
	}
	return records[:n]
}

// Records returns all entries from all versions, newest first.
// Entries within each version follow section order.
func (c *Changelog) Records() []Record {
	var records []Record
	for _, r := range c.Releases {
		records = append(records, r.Records()...)
	}
	return records
}
