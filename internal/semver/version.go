// Package semver implements SemVer 2.0 versions, the npm requirement dialect
// and the bump kinds that drive release planning.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	xsemver "golang.org/x/mod/semver"
)

// InvalidVersionError reports a string that is not a SemVer 2.0 version.
type InvalidVersionError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// Is reports the error as a validation failure.
func (e *InvalidVersionError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// Version is an immutable SemVer 2.0 version. Bumping returns a new Version.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease []string
	Build      []string
}

// Zero is 0.0.0, used for manifests without a version field.
var Zero = Version{}

// Parse parses a SemVer 2.0 version. A leading "v" or "=" is tolerated, as npm does.
func Parse(s string) (Version, error) {
	input := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	if s == "" {
		return Version{}, &InvalidVersionError{Input: input, Reason: "empty version"}
	}

	var v Version
	core := s
	if i := strings.IndexByte(core, '+'); i >= 0 {
		build := core[i+1:]
		core = core[:i]
		ids, err := parseIdentifiers(build, false)
		if err != nil {
			return Version{}, &InvalidVersionError{Input: input, Reason: "build metadata: " + err.Error()}
		}
		v.Build = ids
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		pre := core[i+1:]
		core = core[:i]
		ids, err := parseIdentifiers(pre, true)
		if err != nil {
			return Version{}, &InvalidVersionError{Input: input, Reason: "prerelease: " + err.Error()}
		}
		v.Prerelease = ids
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, &InvalidVersionError{Input: input, Reason: "expected major.minor.patch"}
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := parseNumeric(p)
		if err != nil {
			return Version{}, &InvalidVersionError{Input: input, Reason: err.Error()}
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseNumeric(p string) (uint64, error) {
	if p == "" {
		return 0, fmt.Errorf("empty numeric component")
	}
	if len(p) > 1 && p[0] == '0' {
		return 0, fmt.Errorf("numeric component %q has a leading zero", p)
	}
	n, err := strconv.ParseUint(p, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("numeric component %q is not a number", p)
	}
	return n, nil
}

func parseIdentifiers(s string, prerelease bool) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("empty identifier list")
	}
	ids := strings.Split(s, ".")
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("empty identifier")
		}
		for _, r := range id {
			if !isIdentRune(r) {
				return nil, fmt.Errorf("invalid character %q in %q", r, id)
			}
		}
		if prerelease && isNumeric(id) && len(id) > 1 && id[0] == '0' {
			return nil, fmt.Errorf("numeric identifier %q has a leading zero", id)
		}
	}
	return ids, nil
}

func isIdentRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-'
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String formats the version without a "v" prefix.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Prerelease, "."))
	}
	if len(v.Build) > 0 {
		b.WriteByte('+')
		b.WriteString(strings.Join(v.Build, "."))
	}
	return b.String()
}

// Compare returns -1, 0 or +1 following SemVer precedence.
// Build metadata does not participate.
func (v Version) Compare(o Version) int {
	return xsemver.Compare("v"+v.String(), "v"+o.String())
}

// LessThan reports whether v has lower precedence than o.
func (v Version) LessThan(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o have equal precedence.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// IsPrerelease reports whether v carries prerelease identifiers.
func (v Version) IsPrerelease() bool {
	return len(v.Prerelease) > 0
}

// sameTuple reports whether v and o share major.minor.patch.
func (v Version) sameTuple(o Version) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

// release returns v without prerelease or build metadata.
func (v Version) release() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Max returns the highest version of vs, or Zero when vs is empty.
func Max(vs ...Version) Version {
	var out Version
	for i, v := range vs {
		if i == 0 || out.LessThan(v) {
			out = v
		}
	}
	return out
}
