package resolver

import (
	"fmt"
	"strings"
)

// Strategy decides which packages are candidates for a bump.
type Strategy int

const (
	// Independent bumps only named packages and their dependents.
	Independent Strategy = iota
	// Unified bumps every package to one shared version.
	Unified
)

var strategyNames = map[Strategy]string{
	Independent: "independent",
	Unified:     "unified",
}

// String returns the configuration name.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStrategy parses a configuration name.
func ParseStrategy(s string) (Strategy, error) {
	for k, name := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return k, nil
		}
	}
	return Independent, fmt.Errorf("unknown strategy %q (expected independent|unified)", s)
}

// Propagation decides the bump given to dependents of bumped packages.
type Propagation int

const (
	// MinorOnIncompatible gives dependents a patch bump, or a minor bump when
	// a major dependency bump falls outside their requirement.
	MinorOnIncompatible Propagation = iota
	// PatchOnly always gives dependents a patch bump.
	PatchOnly
	// StrictBreaking passes major bumps through to dependents unchanged.
	StrictBreaking
)

var propagationNames = map[Propagation]string{
	MinorOnIncompatible: "minor-on-incompatible",
	PatchOnly:           "patch-only",
	StrictBreaking:      "strict-breaking",
}

// String returns the configuration name.
func (p Propagation) String() string {
	if name, ok := propagationNames[p]; ok {
		return name
	}
	return fmt.Sprintf("propagation(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Propagation) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePropagation parses a configuration name. "cascade" is accepted as an
// alias of the default.
func ParsePropagation(s string) (Propagation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "cascade" || s == "" {
		return MinorOnIncompatible, nil
	}
	for k, name := range propagationNames {
		if s == name {
			return k, nil
		}
	}
	return MinorOnIncompatible, fmt.Errorf("unknown propagation policy %q (expected minor-on-incompatible|patch-only|strict-breaking)", s)
}

// Options are the capability parameters of a resolution.
type Options struct {
	Strategy    Strategy
	Propagation Propagation
	// Snapshot turns every bump into a snapshot bump.
	Snapshot bool
	// SnapshotID is the commit id used in snapshot versions.
	SnapshotID string
	// Dirty is set by callers that found uncommitted changes.
	Dirty bool
	// APIBoundaries names packages whose public API is a stated boundary.
	APIBoundaries []string
}
