// Package manifest reads and writes package.json files without disturbing
// field order, formatting or unknown fields, and parses dependency specs.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// FileName is the manifest file name looked up in every package directory.
const FileName = "package.json"

// UnnamedPackage is reported for manifests without a name field.
const UnnamedPackage = "unnamed"

const defaultIndent = "  "

// InvalidManifestError reports a package.json that cannot be used.
type InvalidManifestError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Reason)
}

// Is reports the error as a validation failure.
func (e *InvalidManifestError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// Manifest is a parsed package.json.
type Manifest struct {
	Path   string
	root   *Object
	indent string
}

// Read loads the manifest at path. Reads never modify the file.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading manifest %s: %w: %w", path, clierrors.ErrNotFound, err)
		}
		return nil, fmt.Errorf("reading manifest %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return Parse(path, data)
}

// Parse decodes manifest bytes. path is only used for error messages.
func Parse(path string, data []byte) (*Manifest, error) {
	root, err := ParseObject(data)
	if err != nil {
		return nil, &InvalidManifestError{Path: path, Reason: err.Error()}
	}
	m := &Manifest{Path: path, root: root, indent: detectIndent(data)}

	if raw, ok := root.Raw("name"); ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, &InvalidManifestError{Path: path, Reason: "name must be a string"}
		}
	}
	if _, err := m.Version(); err != nil {
		return nil, err
	}
	return m, nil
}

// detectIndent returns the whitespace used before the first top-level key.
func detectIndent(data []byte) string {
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		if ws := line[:len(line)-len(trimmed)]; ws != "" {
			return ws
		}
		break
	}
	return defaultIndent
}

// Name returns the package name, or "unnamed" when the field is missing.
func (m *Manifest) Name() string {
	if name, ok := m.root.String("name"); ok && name != "" {
		return name
	}
	return UnnamedPackage
}

// Version returns the package version, or 0.0.0 when the field is missing.
func (m *Manifest) Version() (semver.Version, error) {
	raw, ok := m.root.Raw("version")
	if !ok {
		return semver.Zero, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return semver.Version{}, &InvalidManifestError{Path: m.Path, Reason: "version must be a string"}
	}
	v, err := semver.Parse(s)
	if err != nil {
		return semver.Version{}, &InvalidManifestError{Path: m.Path, Reason: err.Error()}
	}
	return v, nil
}

// SetVersion updates the version field in place, appending it when missing.
func (m *Manifest) SetVersion(v semver.Version) error {
	return m.root.SetString("version", v.String())
}

// Private reports the "private" flag.
func (m *Manifest) Private() bool {
	raw, ok := m.root.Raw("private")
	if !ok {
		return false
	}
	var b bool
	return json.Unmarshal(raw, &b) == nil && b
}

// Workspaces returns the workspace globs declared by a root manifest. Both
// the array form and the {"packages": [...]} form are accepted.
func (m *Manifest) Workspaces() ([]string, error) {
	raw, ok := m.root.Raw("workspaces")
	if !ok {
		return nil, nil
	}
	var patterns []string
	if err := json.Unmarshal(raw, &patterns); err == nil {
		return patterns, nil
	}
	var nested struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, &InvalidManifestError{Path: m.Path, Reason: "workspaces must be an array or an object with packages"}
	}
	return nested.Packages, nil
}

// section returns the ordered dependency object for kind, or nil.
func (m *Manifest) section(kind DepKind) (*Object, error) {
	raw, ok := m.root.Raw(kind.Section())
	if !ok {
		return nil, nil
	}
	obj, err := ParseObject(raw)
	if err != nil {
		return nil, &InvalidManifestError{Path: m.Path, Reason: fmt.Sprintf("%s: %v", kind.Section(), err)}
	}
	return obj, nil
}

// Dependencies parses every dependency, ordered by section then by position
// within the section. isInternal may be nil.
func (m *Manifest) Dependencies(isInternal func(string) bool) ([]DependencySpec, error) {
	var deps []DependencySpec
	for _, kind := range Sections {
		obj, err := m.section(kind)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			continue
		}
		for _, f := range obj.Fields() {
			var value string
			if err := json.Unmarshal(f.Value, &value); err != nil {
				return nil, &InvalidManifestError{
					Path:   m.Path,
					Reason: fmt.Sprintf("%s.%s must be a string", kind.Section(), f.Key),
				}
			}
			spec, err := ParseSpec(f.Key, value, kind, isInternal)
			if err != nil {
				return nil, fmt.Errorf("%s: %s.%s: %w", m.Path, kind.Section(), f.Key, err)
			}
			deps = append(deps, spec)
		}
	}
	return deps, nil
}

// UpdateDependency replaces the raw spec of name in the kind section,
// keeping its position. It fails with ErrNotFound when the entry is absent.
func (m *Manifest) UpdateDependency(kind DepKind, name, spec string) error {
	obj, err := m.section(kind)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("%s has no %s: %w", m.Path, kind.Section(), clierrors.ErrNotFound)
	}
	if _, ok := obj.Raw(name); !ok {
		return fmt.Errorf("%s: %s.%s: %w", m.Path, kind.Section(), name, clierrors.ErrNotFound)
	}
	if err := obj.SetString(name, spec); err != nil {
		return err
	}
	raw, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	return m.root.SetRaw(kind.Section(), raw)
}

// Field returns a raw top-level field.
func (m *Manifest) Field(key string) (json.RawMessage, bool) {
	return m.root.Raw(key)
}

// Keys returns the top-level keys in document order.
func (m *Manifest) Keys() []string {
	return m.root.Keys()
}

// Bytes renders the manifest with its original indentation and a trailing newline.
func (m *Manifest) Bytes() ([]byte, error) {
	indent := m.indent
	if indent == "" {
		indent = defaultIndent
	}
	return m.root.Indent(indent)
}

// Write renders m and stores it at path with a temp-file rename.
func Write(path string, m *Manifest) error {
	return WriteWith(fsutil.AtomicWriteFile, path, m)
}

// WriteWith is Write with a caller-supplied file writer.
func WriteWith(write fsutil.WriteFileFunc, path string, m *Manifest) error {
	data, err := m.Bytes()
	if err != nil {
		return fmt.Errorf("encoding manifest %s: %w", path, err)
	}
	if err := write(path, data, fsutil.FileMode(path, 0o644)); err != nil {
		return fmt.Errorf("writing manifest %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return nil
}
