package manifest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// DepKind is the manifest section a dependency is declared in.
type DepKind int

const (
	Regular DepKind = iota
	Dev
	Peer
	Optional
)

// Sections lists the dependency sections in the order they are read.
var Sections = []DepKind{Regular, Dev, Peer, Optional}

// Section returns the package.json key for the kind.
func (k DepKind) Section() string {
	switch k {
	case Dev:
		return "devDependencies"
	case Peer:
		return "peerDependencies"
	case Optional:
		return "optionalDependencies"
	default:
		return "dependencies"
	}
}

func (k DepKind) String() string {
	switch k {
	case Dev:
		return "dev"
	case Peer:
		return "peer"
	case Optional:
		return "optional"
	default:
		return "regular"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k DepKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TargetKind tags the variant held by a Target.
type TargetKind int

const (
	TargetRegistry TargetKind = iota
	TargetWorkspace
	TargetFile
	TargetGit
	TargetGitHub
	TargetURL
)

func (k TargetKind) String() string {
	switch k {
	case TargetWorkspace:
		return "workspace"
	case TargetFile:
		return "file"
	case TargetGit:
		return "git"
	case TargetGitHub:
		return "github"
	case TargetURL:
		return "url"
	default:
		return "registry"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k TargetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Target is where a dependency resolves to. Which fields are set depends on Kind:
//
//	Registry:  Name, Req (or Tag for dist-tags such as "latest"), Alias when "npm:" was used
//	Workspace: Name, Req or Shorthand ("*", "^", "~"), Path for file-style links
//	File:      Path
//	Git:       Repo, Ref
//	GitHub:    User, Repo, Ref
//	URL:       URL
type Target struct {
	Kind      TargetKind
	Name      string
	Req       semver.Req
	Tag       string
	Shorthand string
	Alias     bool
	Path      string
	Repo      string
	User      string
	Ref       string
	URL       string
}

// DependencySpec is one declared dependency.
type DependencySpec struct {
	// Key is the name the dependency is declared under.
	Key    string
	Kind   DepKind
	Raw    string
	Target Target
}

// Name is the package the spec resolves to. It differs from Key for npm aliases.
func (d DependencySpec) Name() string {
	if d.Target.Name != "" {
		return d.Target.Name
	}
	return d.Key
}

// IsExternal reports whether the spec can never point at a workspace package.
func (d DependencySpec) IsExternal() bool {
	switch d.Target.Kind {
	case TargetFile, TargetGit, TargetGitHub, TargetURL:
		return true
	}
	return false
}

// Accepts reports whether the requirement is satisfied by v. Workspace
// shorthands, links and dist-tags accept any version.
func (d DependencySpec) Accepts(v semver.Version) bool {
	switch d.Target.Kind {
	case TargetRegistry:
		if d.Target.Tag != "" {
			return true
		}
		return d.Target.Req.Matches(v)
	case TargetWorkspace:
		if d.Target.Shorthand != "" || d.Target.Path != "" {
			return true
		}
		return d.Target.Req.Matches(v)
	}
	return true
}

// Rewrite returns the raw spec updated to accept next, keeping its prefix
// style. The bool is false when the text does not change.
func (d DependencySpec) Rewrite(next semver.Version) (string, bool) {
	t := d.Target
	switch t.Kind {
	case TargetRegistry:
		if t.Tag != "" {
			return d.Raw, false
		}
		req, changed := t.Req.Rewrite(next)
		if !changed {
			return d.Raw, false
		}
		if t.Alias {
			return "npm:" + t.Name + "@" + req.String(), true
		}
		return req.String(), true
	case TargetWorkspace:
		if t.Shorthand != "" || t.Path != "" {
			return d.Raw, false
		}
		req, changed := t.Req.Rewrite(next)
		if !changed {
			return d.Raw, false
		}
		return "workspace:" + req.String(), true
	}
	return d.Raw, false
}

var (
	githubShorthand = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9-]*)/([A-Za-z0-9._-]+)(?:#(.+))?$`)
	distTag         = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
)

// ParseSpec classifies a dependency value. isInternal reports whether a name
// belongs to the workspace and may be nil; file-style links to internal
// packages become Workspace targets.
func ParseSpec(key, raw string, kind DepKind, isInternal func(string) bool) (DependencySpec, error) {
	spec := DependencySpec{Key: key, Kind: kind, Raw: raw}
	value := strings.TrimSpace(raw)
	internal := func(name string) bool { return isInternal != nil && isInternal(name) }

	switch {
	case strings.HasPrefix(value, "workspace:"):
		rest := strings.TrimPrefix(value, "workspace:")
		spec.Target = Target{Kind: TargetWorkspace, Name: key}
		switch {
		case rest == "*" || rest == "^" || rest == "~" || rest == "":
			spec.Target.Shorthand = rest
			if rest == "" {
				spec.Target.Shorthand = "*"
			}
		case strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "/"):
			spec.Target.Path = rest
		default:
			if i := strings.LastIndex(rest, "@"); i > 0 {
				spec.Target.Name = rest[:i]
				rest = rest[i+1:]
			}
			req, err := semver.ParseReq(rest)
			if err != nil {
				return DependencySpec{}, err
			}
			spec.Target.Req = req
		}

	case hasAnyPrefix(value, "file:", "link:", "portal:"):
		path := value[strings.IndexByte(value, ':')+1:]
		if internal(key) {
			spec.Target = Target{Kind: TargetWorkspace, Name: key, Path: path}
		} else {
			spec.Target = Target{Kind: TargetFile, Path: path}
		}

	case hasAnyPrefix(value, "git+", "git://", "git@", "gitlab:", "bitbucket:"):
		repo, ref := splitFragment(value)
		spec.Target = Target{Kind: TargetGit, Repo: repo, Ref: ref}

	case strings.HasPrefix(value, "github:"):
		m := githubShorthand.FindStringSubmatch(strings.TrimPrefix(value, "github:"))
		if m == nil {
			repo, ref := splitFragment(value)
			spec.Target = Target{Kind: TargetGit, Repo: repo, Ref: ref}
			break
		}
		spec.Target = Target{Kind: TargetGitHub, User: m[1], Repo: m[2], Ref: m[3]}

	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		if u, err := url.Parse(value); err == nil && strings.HasSuffix(u.Path, ".git") {
			repo, ref := splitFragment(value)
			spec.Target = Target{Kind: TargetGit, Repo: repo, Ref: ref}
			break
		}
		spec.Target = Target{Kind: TargetURL, URL: value}

	case strings.HasPrefix(value, "npm:"):
		rest := strings.TrimPrefix(value, "npm:")
		name, reqText := rest, ""
		if i := strings.LastIndex(rest, "@"); i > 0 {
			name, reqText = rest[:i], rest[i+1:]
		}
		spec.Target = Target{Kind: TargetRegistry, Name: name, Alias: true}
		if err := spec.Target.setRequirement(reqText); err != nil {
			return DependencySpec{}, err
		}

	case strings.HasPrefix(value, ".") || strings.HasPrefix(value, "/") || strings.HasPrefix(value, "~/"):
		if internal(key) {
			spec.Target = Target{Kind: TargetWorkspace, Name: key, Path: value}
		} else {
			spec.Target = Target{Kind: TargetFile, Path: value}
		}

	case githubShorthand.MatchString(value):
		m := githubShorthand.FindStringSubmatch(value)
		spec.Target = Target{Kind: TargetGitHub, User: m[1], Repo: m[2], Ref: m[3]}

	default:
		spec.Target = Target{Kind: TargetRegistry, Name: key}
		if err := spec.Target.setRequirement(value); err != nil {
			return DependencySpec{}, err
		}
	}
	return spec, nil
}

func (t *Target) setRequirement(text string) error {
	req, err := semver.ParseReq(text)
	if err == nil {
		t.Req = req
		return nil
	}
	if distTag.MatchString(text) {
		t.Tag = text
		return nil
	}
	return err
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func splitFragment(s string) (string, string) {
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
