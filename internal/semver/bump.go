package semver

import (
	"fmt"
	"strings"
)

// Bump is the kind of version increase. The order None < Patch < Minor <
// Major < Snapshot is meaningful: combining bumps takes the maximum, which
// makes Snapshot terminal.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
	BumpSnapshot
)

// UnknownSnapshotID is used when a snapshot bump has no commit identifier.
const UnknownSnapshotID = "unknown"

var bumpNames = map[Bump]string{
	BumpNone:     "none",
	BumpPatch:    "patch",
	BumpMinor:    "minor",
	BumpMajor:    "major",
	BumpSnapshot: "snapshot",
}

// String returns the lower-case bump name used in changeset files.
func (b Bump) String() string {
	if name, ok := bumpNames[b]; ok {
		return name
	}
	return fmt.Sprintf("bump(%d)", int(b))
}

// ParseBump parses "none", "patch", "minor", "major" or "snapshot" (case-insensitive).
func ParseBump(s string) (Bump, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for b, name := range bumpNames {
		if name == needle {
			return b, nil
		}
	}
	return BumpNone, &InvalidVersionError{Input: s, Reason: "unknown bump kind (expected none|patch|minor|major|snapshot)"}
}

// Combine returns the larger of two bumps.
func (b Bump) Combine(o Bump) Bump {
	if o > b {
		return o
	}
	return b
}

// MaxBump combines all bumps, returning BumpNone for an empty list.
func MaxBump(bumps ...Bump) Bump {
	out := BumpNone
	for _, b := range bumps {
		out = out.Combine(b)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (b Bump) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bump) UnmarshalText(text []byte) error {
	parsed, err := ParseBump(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Bump returns the version obtained by applying kind to v. Prerelease and
// build metadata are always cleared; a snapshot appends 0.snapshot.<id>.
// An empty snapshotID becomes "unknown".
func (v Version) Bump(kind Bump, snapshotID string) Version {
	switch kind {
	case BumpMajor:
		return Version{Major: v.Major + 1}
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	case BumpPatch:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	case BumpSnapshot:
		out := v.release()
		out.Prerelease = []string{"0", "snapshot", snapshotIdentifier(snapshotID)}
		return out
	default:
		return v
	}
}

// snapshotIdentifier turns a commit id into a valid prerelease identifier.
func snapshotIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return UnknownSnapshotID
	}
	var b strings.Builder
	for _, r := range id {
		if isIdentRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	out := b.String()
	if isNumeric(out) && len(out) > 1 && out[0] == '0' {
		out = "g" + out
	}
	return out
}
