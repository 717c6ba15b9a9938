package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		Package("@org/core", "1.0.0").
		Package("@org/web", "2.1.0",
			testutil.Dependency("@org/core", "^1.0.0"),
			testutil.Dependency("react", "^18.2.0"),
			testutil.DevDependency("@org/testing", "workspace:*")).
		Package("@org/testing", "0.1.0", testutil.Dependency("@org/core", "file:../core"))
	root := b.Build()

	ws, err := NewLoader(WithMaxConcurrentReads(2)).Load(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"@org/core", "@org/testing", "@org/web"}, ws.Names())
	assert.Equal(t, []string{"packages/*"}, ws.Patterns)

	web, ok := ws.Package("@org/web")
	require.True(t, ok)
	assert.Equal(t, "2.1.0", web.Version.String())
	assert.Equal(t, "packages/web", web.RelDir(ws.Root))
	require.Len(t, web.Dependencies, 3)
	assert.Equal(t, manifest.TargetRegistry, web.Dependencies[0].Target.Kind)
	assert.Equal(t, "react", web.Dependencies[1].Key)
	assert.Equal(t, manifest.Dev, web.Dependencies[2].Kind)
	assert.Equal(t, manifest.TargetWorkspace, web.Dependencies[2].Target.Kind)

	testPkg, ok := ws.Package("@org/testing")
	require.True(t, ok)
	require.Len(t, testPkg.Dependencies, 1)
	assert.Equal(t, manifest.TargetWorkspace, testPkg.Dependencies[0].Target.Kind, "file link to a workspace package is internal")
}

func TestLoader_ConfiguredPatternsOverrideRoot(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		WithPatterns("packages/*").
		PackageAt("packages/a", "a", "1.0.0").
		PackageAt("apps/site", "site", "0.1.0").
		PackageAt("apps/legacy", "legacy", "0.0.1").
		PackageAt("tools/deep/nested/cli", "cli", "3.0.0")
	root := b.Build()

	tests := map[string]struct {
		patterns []string
		want     []string
	}{
		"root manifest patterns": {patterns: nil, want: []string{"a"}},
		"explicit list":          {patterns: []string{"packages/*", "apps/*"}, want: []string{"a", "legacy", "site"}},
		"exclusion":              {patterns: []string{"apps/*", "!apps/legacy"}, want: []string{"site"}},
		"double star":            {patterns: []string{"tools/**"}, want: []string{"cli"}},
		"dot slash prefix":       {patterns: []string{"./apps/site/"}, want: []string{"site"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ws, err := NewLoader().Load(context.Background(), root, tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ws.Names())
		})
	}
}

func TestLoader_SkipsNodeModulesAndDirsWithoutManifest(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).WithPatterns("packages/**").Package("a", "1.0.0")
	root := b.Build()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", "empty"), 0o755))
	nm := filepath.Join(root, "packages", "a", "node_modules", "dep")
	require.NoError(t, os.MkdirAll(nm, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nm, "package.json"), []byte(`{"name":"dep","version":"1.0.0"}`), 0o644))

	ws, err := NewLoader().Load(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ws.Names())
}

func TestLoader_DuplicatePackage(t *testing.T) {
	t.Parallel()

	b := testutil.NewWorkspace(t).
		PackageAt("packages/one", "dup", "1.0.0").
		PackageAt("packages/two", "dup", "2.0.0")
	root := b.Build()

	_, err := NewLoader().Load(context.Background(), root, nil)
	require.Error(t, err)
	var dup *DuplicatePackageError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "dup", dup.Name)
	assert.Len(t, dup.Paths, 2)
	assert.True(t, errors.Is(err, clierrors.ErrValidation))
}

func TestLoader_SinglePackageRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"solo","version":"0.3.0"}`), 0o644))

	ws, err := NewLoader().Load(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, ws.Names())
}

func TestLoader_NotAWorkspace(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), t.TempDir(), nil)
	require.Error(t, err)
	assert.True(t, IsNotWorkspace(err))
}

func TestLoader_Cancelled(t *testing.T) {
	t.Parallel()

	root := testutil.NewWorkspace(t).Package("a", "1.0.0").Package("b", "1.0.0").Build()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader().Load(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkspace_PackageForPath(t *testing.T) {
	t.Parallel()

	root := testutil.NewWorkspace(t).
		WithPatterns("packages/*", "packages/a/plugins/*").
		PackageAt("packages/a", "a", "1.0.0").
		PackageAt("packages/a/plugins/x", "a-x", "1.0.0").
		PackageAt("packages/b", "b", "1.0.0").
		Build()

	ws, err := NewLoader().Load(context.Background(), root, nil)
	require.NoError(t, err)

	tests := map[string]struct {
		path string
		want string
	}{
		"file in package":         {path: "packages/b/src/index.ts", want: "b"},
		"nested package wins":     {path: "packages/a/plugins/x/lib.js", want: "a-x"},
		"outer package":           {path: "packages/a/README.md", want: "a"},
		"outside every package":   {path: "docs/guide.md", want: ""},
		"sibling prefix mismatch": {path: "packages/bb/file", want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			pkg, ok := ws.PackageForPath(tt.path)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, pkg.Name)
		})
	}
}
