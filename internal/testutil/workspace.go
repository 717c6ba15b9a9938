package testutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ariel-frischer/bumpkit/internal/manifest"
)

// Dep is a dependency entry written into a fixture manifest.
type Dep struct {
	Kind manifest.DepKind
	Name string
	Spec string
}

// Dependency is a regular dependency.
func Dependency(name, spec string) Dep { return Dep{Kind: manifest.Regular, Name: name, Spec: spec} }

// DevDependency is a devDependencies entry.
func DevDependency(name, spec string) Dep { return Dep{Kind: manifest.Dev, Name: name, Spec: spec} }

// PeerDependency is a peerDependencies entry.
func PeerDependency(name, spec string) Dep { return Dep{Kind: manifest.Peer, Name: name, Spec: spec} }

// OptionalDependency is an optionalDependencies entry.
func OptionalDependency(name, spec string) Dep {
	return Dep{Kind: manifest.Optional, Name: name, Spec: spec}
}

type fixturePackage struct {
	name    string
	version string
	dir     string
	deps    []Dep
}

// WorkspaceBuilder writes a package.json tree into a temp directory.
type WorkspaceBuilder struct {
	t        *testing.T
	root     string
	patterns []string
	packages []fixturePackage
}

// NewWorkspace starts a workspace rooted in t.TempDir() with the
// "packages/*" pattern.
func NewWorkspace(t *testing.T) *WorkspaceBuilder {
	t.Helper()
	return &WorkspaceBuilder{t: t, root: t.TempDir(), patterns: []string{"packages/*"}}
}

// Root returns the workspace root directory.
func (b *WorkspaceBuilder) Root() string {
	return b.root
}

// WithPatterns replaces the workspace globs of the root manifest.
func (b *WorkspaceBuilder) WithPatterns(patterns ...string) *WorkspaceBuilder {
	b.patterns = patterns
	return b
}

// Package adds a package under packages/<last name segment>.
func (b *WorkspaceBuilder) Package(name, version string, deps ...Dep) *WorkspaceBuilder {
	return b.PackageAt(path.Join("packages", path.Base(name)), name, version, deps...)
}

// PackageAt adds a package in dir, relative to the root.
func (b *WorkspaceBuilder) PackageAt(dir, name, version string, deps ...Dep) *WorkspaceBuilder {
	b.packages = append(b.packages, fixturePackage{name: name, version: version, dir: dir, deps: deps})
	return b
}

// Build writes every manifest and returns the root.
func (b *WorkspaceBuilder) Build() string {
	b.t.Helper()

	root := &manifest.Object{}
	b.must(root.SetString("name", "fixture-root"))
	b.must(root.SetRaw("private", []byte("true")))
	if len(b.patterns) > 0 {
		quoted := make([]string, len(b.patterns))
		for i, p := range b.patterns {
			quoted[i] = `"` + p + `"`
		}
		b.must(root.SetRaw("workspaces", []byte("["+strings.Join(quoted, ",")+"]")))
	}
	b.write(filepath.Join(b.root, manifest.FileName), root)

	for _, p := range b.packages {
		obj := &manifest.Object{}
		b.must(obj.SetString("name", p.name))
		if p.version != "" {
			b.must(obj.SetString("version", p.version))
		}
		for _, kind := range manifest.Sections {
			section := &manifest.Object{}
			for _, d := range p.deps {
				if d.Kind == kind {
					b.must(section.SetString(d.Name, d.Spec))
				}
			}
			if section.Len() == 0 {
				continue
			}
			raw, err := section.MarshalJSON()
			b.must(err)
			b.must(obj.SetRaw(kind.Section(), raw))
		}
		b.write(filepath.Join(b.root, filepath.FromSlash(p.dir), manifest.FileName), obj)
	}
	return b.root
}

// ManifestPath returns the manifest path of a package added with Package or PackageAt.
func (b *WorkspaceBuilder) ManifestPath(name string) string {
	b.t.Helper()
	for _, p := range b.packages {
		if p.name == name {
			return filepath.Join(b.root, filepath.FromSlash(p.dir), manifest.FileName)
		}
	}
	b.t.Fatalf("no fixture package %q", name)
	return ""
}

// Dir returns the directory of a fixture package.
func (b *WorkspaceBuilder) Dir(name string) string {
	return filepath.Dir(b.ManifestPath(name))
}

func (b *WorkspaceBuilder) write(p string, obj *manifest.Object) {
	b.t.Helper()
	data, err := obj.Indent("  ")
	b.must(err)
	b.must(os.MkdirAll(filepath.Dir(p), 0o755))
	b.must(os.WriteFile(p, data, 0o644))
}

func (b *WorkspaceBuilder) must(err error) {
	b.t.Helper()
	if err != nil {
		b.t.Fatalf("building workspace fixture: %v", err)
	}
}

// ReadFile returns the contents of path or fails the test.
func ReadFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("reading %s: %v", p, err)
	}
	return string(data)
}

// SnapshotFiles reads every path into a map keyed by path.
func SnapshotFiles(t *testing.T, paths ...string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = ReadFile(t, p)
	}
	return out
}
