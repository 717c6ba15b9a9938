// Package workspace discovers the packages of a monorepo from its workspace
// globs and loads their manifests.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// DefaultMaxConcurrentReads bounds concurrent manifest reads.
const DefaultMaxConcurrentReads = 16

// DuplicatePackageError reports two manifests declaring the same name.
type DuplicatePackageError struct {
	Name  string
	Paths []string
}

// Error implements the error interface.
func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("duplicate package %q declared in %s", e.Name, strings.Join(e.Paths, ", "))
}

// Is reports the error as a validation failure.
func (e *DuplicatePackageError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// Package is a discovered workspace member.
type Package struct {
	Name         string
	Version      semver.Version
	Dir          string
	ManifestPath string
	Private      bool
	Dependencies []manifest.DependencySpec

	parsed *manifest.Manifest
}

// RelDir returns the package directory relative to root using forward slashes.
func (p *Package) RelDir(root string) string {
	rel, err := filepath.Rel(root, p.Dir)
	if err != nil {
		return filepath.ToSlash(p.Dir)
	}
	return filepath.ToSlash(rel)
}

// Workspace is the root directory plus its discovered packages sorted by name.
type Workspace struct {
	Root     string
	Patterns []string
	Packages []*Package

	byName map[string]*Package
}

// New indexes packages by name. Packages are sorted by name.
func New(root string, patterns []string, pkgs []*Package) (*Workspace, error) {
	if err := checkDuplicates(pkgs); err != nil {
		return nil, err
	}
	w := &Workspace{Root: root, Patterns: patterns, byName: make(map[string]*Package, len(pkgs))}
	for _, p := range pkgs {
		w.byName[p.Name] = p
	}
	w.Packages = append([]*Package(nil), pkgs...)
	sort.Slice(w.Packages, func(i, j int) bool { return w.Packages[i].Name < w.Packages[j].Name })
	return w, nil
}

// Package looks up a package by name.
func (w *Workspace) Package(name string) (*Package, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// Has reports whether name is a workspace package.
func (w *Workspace) Has(name string) bool {
	_, ok := w.byName[name]
	return ok
}

// Names returns package names in sorted order.
func (w *Workspace) Names() []string {
	names := make([]string, len(w.Packages))
	for i, p := range w.Packages {
		names[i] = p.Name
	}
	return names
}

// PackageForPath returns the package whose directory contains path (relative
// to the workspace root or absolute). The deepest match wins.
func (w *Workspace) PackageForPath(p string) (*Package, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.Root, filepath.FromSlash(p))
	}
	var best *Package
	for _, pkg := range w.Packages {
		rel, err := filepath.Rel(pkg.Dir, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(pkg.Dir) > len(best.Dir) {
			best = pkg
		}
	}
	return best, best != nil
}

// Loader discovers packages with bounded concurrent manifest reads.
type Loader struct {
	logger        *slog.Logger
	maxConcurrent int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger. A nil logger leaves the default in place.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMaxConcurrentReads bounds how many manifests are read at once.
func WithMaxConcurrentReads(n int) LoaderOption {
	return func(l *Loader) {
		if n >= 1 {
			l.maxConcurrent = n
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:        slog.Default(),
		maxConcurrent: DefaultMaxConcurrentReads,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the root manifest and discovers the workspace. When patterns is
// empty the root manifest's "workspaces" field is used; a root without
// workspace globs is a single-package workspace.
func (l *Loader) Load(ctx context.Context, root string, patterns []string) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	rootManifest, err := manifest.Read(filepath.Join(absRoot, manifest.FileName))
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		if patterns, err = rootManifest.Workspaces(); err != nil {
			return nil, err
		}
	}

	var pkgs []*Package
	if len(patterns) == 0 {
		l.logger.Debug("no workspace patterns, treating root as the only package", slog.String("root", absRoot))
		pkgs, err = l.readAll(ctx, []string{absRoot})
	} else {
		pkgs, err = l.Discover(ctx, absRoot, patterns)
	}
	if err != nil {
		return nil, err
	}
	return New(absRoot, patterns, pkgs)
}

// Discover evaluates the patterns against root and reads every matched
// directory containing a package.json. Patterns prefixed with "!" exclude.
func (l *Loader) Discover(ctx context.Context, root string, patterns []string) ([]*Package, error) {
	dirs, err := matchDirs(root, patterns)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("workspace patterns matched",
		slog.String("root", root),
		slog.Int("patterns", len(patterns)),
		slog.Int("directories", len(dirs)))
	return l.readAll(ctx, dirs)
}

func (l *Loader) readAll(ctx context.Context, dirs []string) ([]*Package, error) {
	pkgs := make([]*Package, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrent)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pkg, err := readPackage(dir)
			if err != nil {
				return err
			}
			pkgs[i] = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := checkDuplicates(pkgs); err != nil {
		return nil, err
	}
	if err := resolveDependencies(pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

func checkDuplicates(pkgs []*Package) error {
	seen := make(map[string][]string)
	for _, p := range pkgs {
		seen[p.Name] = append(seen[p.Name], p.ManifestPath)
	}
	for _, p := range pkgs {
		if paths := seen[p.Name]; len(paths) > 1 {
			sort.Strings(paths)
			return &DuplicatePackageError{Name: p.Name, Paths: paths}
		}
	}
	return nil
}

// readPackage loads the manifest in dir. Dependencies are filled in later.
func readPackage(dir string) (*Package, error) {
	manifestPath := filepath.Join(dir, manifest.FileName)
	m, err := manifest.Read(manifestPath)
	if err != nil {
		return nil, err
	}
	version, err := m.Version()
	if err != nil {
		return nil, err
	}
	return &Package{
		Name:         m.Name(),
		Version:      version,
		Dir:          dir,
		ManifestPath: manifestPath,
		Private:      m.Private(),
		parsed:       m,
	}, nil
}

// resolveDependencies parses every package's dependencies once the full set
// of internal names is known.
func resolveDependencies(pkgs []*Package) error {
	names := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		names[p.Name] = struct{}{}
	}
	isInternal := func(name string) bool {
		_, ok := names[name]
		return ok
	}

	var errs []error
	for _, p := range pkgs {
		deps, err := p.parsed.Dependencies(isInternal)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Dependencies = deps
	}
	return errors.Join(errs...)
}

// matchDirs returns the canonical, de-duplicated and sorted directories that
// match the include patterns, are not excluded and contain a package.json.
func matchDirs(root string, patterns []string) ([]string, error) {
	var includes, excludes []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "!") {
			excludes = append(excludes, cleanPattern(p[1:]))
			continue
		}
		includes = append(includes, cleanPattern(p))
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var dirs []string
	for _, pattern := range includes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, clierrors.ErrValidation)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("evaluating workspace pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if skipPath(match) || excluded(match, excludes) {
				continue
			}
			dir := filepath.Join(root, filepath.FromSlash(match))
			info, err := os.Stat(filepath.Join(dir, manifest.FileName))
			if err != nil || info.IsDir() {
				continue
			}
			canonical, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", dir, err)
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func cleanPattern(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func skipPath(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if segment == "node_modules" || segment == ".git" {
			return true
		}
	}
	return false
}

func excluded(p string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, p); ok {
			return true
		}
	}
	return false
}

// IsNotWorkspace reports whether err means root has no package.json.
func IsNotWorkspace(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, clierrors.ErrNotFound)
}
