package changeset

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the created_at form used in ids and file names.
const TimestampLayout = "20060102T150405Z"

// Sanitize replaces every character outside [A-Za-z0-9_-] with "-" and
// trims leading and trailing dashes.
func Sanitize(branch string) string {
	var b strings.Builder
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// ID builds a changeset id from a branch and creation time.
func ID(branch string, createdAt time.Time) string {
	return Sanitize(branch) + "-" + createdAt.UTC().Format(TimestampLayout)
}

// ParseID splits an id (or "{id}.json" file name) into its sanitized branch
// and creation time.
func ParseID(id string) (string, time.Time, error) {
	id = strings.TrimSuffix(id, ".json")
	if len(id) < len(TimestampLayout)+1 {
		return "", time.Time{}, fmt.Errorf("changeset id %q is too short", id)
	}
	stampStart := len(id) - len(TimestampLayout)
	if id[stampStart-1] != '-' {
		return "", time.Time{}, fmt.Errorf("changeset id %q has no timestamp suffix", id)
	}
	createdAt, err := time.Parse(TimestampLayout, id[stampStart:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("changeset id %q: %w", id, err)
	}
	return id[:stampStart-1], createdAt.UTC(), nil
}

// TagFor builds the release tag recorded for an environment.
func TagFor(env string, at time.Time) string {
	return env + "-" + at.UTC().Format(TimestampLayout)
}
