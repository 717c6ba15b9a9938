package semver

import (
	"fmt"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// InvalidVersionReqError reports a requirement that is not valid npm range syntax.
type InvalidVersionReqError struct {
	Spec   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidVersionReqError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid version requirement %q", e.Spec)
	}
	return fmt.Sprintf("invalid version requirement %q: %s", e.Spec, e.Reason)
}

// Is reports the error as a validation failure.
func (e *InvalidVersionReqError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// Style is the written form of a requirement. Rewriting keeps the style.
type Style int

const (
	// StyleAny is "*", "x" or an empty requirement.
	StyleAny Style = iota
	// StyleExact is "1.2.3" or "=1.2.3".
	StyleExact
	// StyleCaret is "^1.2.3".
	StyleCaret
	// StyleTilde is "~1.2.3" or "~>1.2.3".
	StyleTilde
	// StyleWildcard is a partial version such as "1.2.*" or "1.x".
	StyleWildcard
	// StyleRange is anything else: comparators, hyphen ranges, unions.
	StyleRange
)

func (s Style) String() string {
	switch s {
	case StyleAny:
		return "any"
	case StyleExact:
		return "exact"
	case StyleCaret:
		return "caret"
	case StyleTilde:
		return "tilde"
	case StyleWildcard:
		return "wildcard"
	default:
		return "range"
	}
}

type op int

const (
	opEQ op = iota
	opGT
	opGTE
	opLT
	opLTE
)

type comparator struct {
	op op
	v  Version
}

func (c comparator) matches(v Version) bool {
	cmp := v.Compare(c.v)
	switch c.op {
	case opEQ:
		return cmp == 0
	case opGT:
		return cmp > 0
	case opGTE:
		return cmp >= 0
	case opLT:
		return cmp < 0
	case opLTE:
		return cmp <= 0
	}
	return false
}

// never matches any version.
var never = comparator{op: opLT, v: Zero}

// Req is a version requirement in the npm range dialect: a union ("||") of
// comparator sets, each set being an intersection of comparators.
type Req struct {
	raw    string
	style  Style
	prefix string
	sets   [][]comparator
}

// Any matches every release version.
var Any = Req{raw: "*", style: StyleAny, sets: [][]comparator{{}}}

// ParseReq parses an npm version requirement.
func ParseReq(s string) (Req, error) {
	raw := strings.TrimSpace(s)
	r := Req{raw: raw, style: StyleRange}

	for _, setText := range strings.Split(raw, "||") {
		set, err := parseSet(strings.TrimSpace(setText))
		if err != nil {
			return Req{}, &InvalidVersionReqError{Spec: s, Reason: err.Error()}
		}
		r.sets = append(r.sets, set)
	}

	r.style, r.prefix = detectStyle(raw)
	return r, nil
}

// MustParseReq is like ParseReq but panics on error.
func MustParseReq(s string) Req {
	r, err := ParseReq(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the requirement as written.
func (r Req) String() string {
	return r.raw
}

// Style returns the written form of the requirement.
func (r Req) Style() Style {
	return r.style
}

// IsAny reports whether the requirement accepts every release.
func (r Req) IsAny() bool {
	return r.style == StyleAny
}

// Matches reports whether v satisfies the requirement. A prerelease version
// only matches a set that names a prerelease on the same major.minor.patch.
func (r Req) Matches(v Version) bool {
	for _, set := range r.sets {
		if setMatches(set, v) {
			return true
		}
	}
	return false
}

func setMatches(set []comparator, v Version) bool {
	for _, c := range set {
		if !c.matches(v) {
			return false
		}
	}
	if !v.IsPrerelease() {
		return true
	}
	for _, c := range set {
		if c.v.IsPrerelease() && c.v.sameTuple(v) {
			return true
		}
	}
	return false
}

// Rewrite returns the requirement updated so that next satisfies it, keeping
// the written style. Caret, tilde and exact requirements always move to next;
// any-requirements never change; wildcards and ranges change to ^next only
// when they no longer accept next. The bool reports whether the text changed.
func (r Req) Rewrite(next Version) (Req, bool) {
	var raw string
	switch r.style {
	case StyleAny:
		return r, false
	case StyleCaret:
		raw = "^" + next.String()
	case StyleTilde:
		raw = "~" + next.String()
	case StyleExact:
		raw = r.prefix + next.String()
	default:
		if r.Matches(next) {
			return r, false
		}
		raw = "^" + next.String()
	}
	if raw == r.raw {
		return r, false
	}
	out, err := ParseReq(raw)
	if err != nil {
		return r, false
	}
	return out, true
}

// MarshalText implements encoding.TextMarshaler.
func (r Req) MarshalText() ([]byte, error) {
	return []byte(r.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Req) UnmarshalText(text []byte) error {
	parsed, err := ParseReq(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func detectStyle(raw string) (Style, string) {
	if strings.Contains(raw, "||") {
		return StyleRange, ""
	}
	tokens := tokenize(raw)
	switch len(tokens) {
	case 0:
		return StyleAny, ""
	case 1:
	default:
		return StyleRange, ""
	}
	tok := tokens[0]
	switch {
	case strings.HasPrefix(tok, "^"):
		return StyleCaret, "^"
	case strings.HasPrefix(tok, "~"):
		return StyleTilde, "~"
	case strings.HasPrefix(tok, ">"), strings.HasPrefix(tok, "<"):
		return StyleRange, ""
	}
	prefix := ""
	if strings.HasPrefix(tok, "=") {
		prefix = "="
	}
	p, err := parsePartial(strings.TrimPrefix(tok, "="))
	if err != nil {
		return StyleRange, ""
	}
	switch p.parts {
	case 0:
		return StyleAny, ""
	case 3:
		return StyleExact, prefix
	default:
		return StyleWildcard, ""
	}
}

// tokenize splits a comparator set on whitespace, joining bare operators with
// the version that follows them (">= 1.2.3" becomes ">=1.2.3").
func tokenize(set string) []string {
	fields := strings.Fields(set)
	var out []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if isOperator(f) && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		out = append(out, f)
	}
	return out
}

func isOperator(s string) bool {
	switch s {
	case ">", ">=", "<", "<=", "=", "^", "~", "~>":
		return true
	}
	return false
}

func parseSet(set string) ([]comparator, error) {
	fields := strings.Fields(set)
	if len(fields) == 3 && fields[1] == "-" {
		return parseHyphen(fields[0], fields[2])
	}
	out := []comparator{}
	for _, tok := range tokenize(set) {
		cs, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

func parseHyphen(from, to string) ([]comparator, error) {
	lo, err := parsePartial(from)
	if err != nil {
		return nil, err
	}
	hi, err := parsePartial(to)
	if err != nil {
		return nil, err
	}
	var out []comparator
	if lo.parts > 0 {
		out = append(out, comparator{op: opGTE, v: lo.floor()})
	}
	switch hi.parts {
	case 0:
	case 3:
		out = append(out, comparator{op: opLTE, v: hi.version()})
	default:
		out = append(out, comparator{op: opLT, v: hi.ceiling()})
	}
	return out, nil
}

func parseToken(tok string) ([]comparator, error) {
	var operator string
	for _, candidate := range []string{">=", "<=", "~>", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(tok, candidate) {
			operator = candidate
			break
		}
	}
	p, err := parsePartial(strings.TrimSpace(tok[len(operator):]))
	if err != nil {
		return nil, err
	}

	switch operator {
	case "", "=":
		switch p.parts {
		case 0:
			return nil, nil
		case 3:
			return []comparator{{op: opEQ, v: p.version()}}, nil
		default:
			return []comparator{{op: opGTE, v: p.floor()}, {op: opLT, v: p.ceiling()}}, nil
		}
	case "^":
		if p.parts == 0 {
			return nil, nil
		}
		return []comparator{{op: opGTE, v: p.floor()}, {op: opLT, v: p.caretCeiling()}}, nil
	case "~", "~>":
		if p.parts == 0 {
			return nil, nil
		}
		upper := Version{Major: p.major + 1}
		if p.parts >= 2 {
			upper = Version{Major: p.major, Minor: p.minor + 1}
		}
		return []comparator{{op: opGTE, v: p.floor()}, {op: opLT, v: upper}}, nil
	case ">":
		switch p.parts {
		case 0:
			return []comparator{never}, nil
		case 3:
			return []comparator{{op: opGT, v: p.version()}}, nil
		default:
			return []comparator{{op: opGTE, v: p.ceiling()}}, nil
		}
	case ">=":
		if p.parts == 0 {
			return nil, nil
		}
		return []comparator{{op: opGTE, v: p.floor()}}, nil
	case "<":
		switch p.parts {
		case 0:
			return []comparator{never}, nil
		case 3:
			return []comparator{{op: opLT, v: p.version()}}, nil
		default:
			return []comparator{{op: opLT, v: p.floor()}}, nil
		}
	case "<=":
		switch p.parts {
		case 0:
			return nil, nil
		case 3:
			return []comparator{{op: opLTE, v: p.version()}}, nil
		default:
			return []comparator{{op: opLT, v: p.ceiling()}}, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator in %q", tok)
}

// partial is a possibly incomplete version such as "1", "1.2", "1.2.x" or "*".
// parts counts the numeric components that were given.
type partial struct {
	major, minor, patch uint64
	parts               int
	pre, build          []string
}

func parsePartial(s string) (partial, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	if s == "" {
		return partial{}, nil
	}

	var p partial
	core := s
	if i := strings.IndexByte(core, '+'); i >= 0 {
		ids, err := parseIdentifiers(core[i+1:], false)
		if err != nil {
			return partial{}, err
		}
		p.build = ids
		core = core[:i]
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		ids, err := parseIdentifiers(core[i+1:], true)
		if err != nil {
			return partial{}, err
		}
		p.pre = ids
		core = core[:i]
	}

	comps := strings.Split(core, ".")
	if len(comps) > 3 {
		return partial{}, fmt.Errorf("too many version components in %q", s)
	}
	wildcard := false
	for i, c := range comps {
		if c == "x" || c == "X" || c == "*" {
			wildcard = true
			continue
		}
		if wildcard {
			return partial{}, fmt.Errorf("numeric component after wildcard in %q", s)
		}
		n, err := parseNumeric(c)
		if err != nil {
			return partial{}, err
		}
		switch i {
		case 0:
			p.major = n
		case 1:
			p.minor = n
		case 2:
			p.patch = n
		}
		p.parts++
	}
	if p.pre != nil && p.parts < 3 {
		return partial{}, fmt.Errorf("prerelease requires a full version in %q", s)
	}
	return p, nil
}

func (p partial) version() Version {
	return Version{Major: p.major, Minor: p.minor, Patch: p.patch, Prerelease: p.pre, Build: p.build}
}

// floor is the lowest version the partial covers.
func (p partial) floor() Version {
	if p.parts == 3 {
		return p.version()
	}
	return Version{Major: p.major, Minor: p.minor}
}

// ceiling is the first version above the partial's range.
func (p partial) ceiling() Version {
	switch p.parts {
	case 1:
		return Version{Major: p.major + 1}
	case 2:
		return Version{Major: p.major, Minor: p.minor + 1}
	default:
		return Version{Major: p.major, Minor: p.minor, Patch: p.patch + 1}
	}
}

// caretCeiling is the exclusive upper bound of ^p: the next change to the
// left-most non-zero component among those given.
func (p partial) caretCeiling() Version {
	switch {
	case p.major > 0 || p.parts == 1:
		return Version{Major: p.major + 1}
	case p.minor > 0 || p.parts == 2:
		return Version{Minor: p.minor + 1}
	default:
		return Version{Patch: p.patch + 1}
	}
}
