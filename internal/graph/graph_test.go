package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	name string
	deps []testutil.Dep
}

func pkg(name string, deps ...testutil.Dep) fixture {
	return fixture{name: name, deps: deps}
}

func packages(t *testing.T, fixtures ...fixture) []*workspace.Package {
	t.Helper()
	names := make(map[string]bool)
	for _, f := range fixtures {
		names[f.name] = true
	}
	isInternal := func(n string) bool { return names[n] }

	var out []*workspace.Package
	for _, f := range fixtures {
		p := &workspace.Package{Name: f.name, Version: semver.MustParse("1.0.0")}
		for _, d := range f.deps {
			spec, err := manifest.ParseSpec(d.Name, d.Spec, d.Kind, isInternal)
			require.NoError(t, err)
			p.Dependencies = append(p.Dependencies, spec)
		}
		out = append(out, p)
	}
	return out
}

func build(t *testing.T, fixtures ...fixture) *Graph {
	t.Helper()
	g, err := Build(packages(t, fixtures...))
	require.NoError(t, err)
	return g
}

func TestBuild_Adjacency(t *testing.T) {
	t.Parallel()

	g := build(t,
		pkg("a"),
		pkg("b", testutil.Dependency("a", "^1.0.0"), testutil.Dependency("react", "^18.0.0")),
		pkg("c", testutil.Dependency("b", "^1.0.0"), testutil.DevDependency("a", "workspace:*")),
		pkg("d", testutil.Dependency("lib", "git+https://example.com/lib.git")),
	)

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Names())
	assert.Equal(t, []string{"a"}, g.DependenciesOf("b"))
	assert.Equal(t, []string{"b", "c"}, g.DependentsOf("a"))
	assert.Empty(t, g.DependentsOf("d"))

	for _, from := range g.Names() {
		for _, to := range g.DependenciesOf(from) {
			assert.Contains(t, g.DependentsOf(to), from, "edge %s -> %s must be mirrored", from, to)
		}
	}

	assert.True(t, g.IsDevOnly("c", "a"))
	assert.False(t, g.IsDevOnly("b", "a"))
	assert.Equal(t, []manifest.DepKind{manifest.Dev}, g.EdgeKinds("c", "a"))
	assert.Nil(t, g.EdgeKinds("a", "c"))

	externals := g.Externals()
	require.Len(t, externals, 2)
	assert.Equal(t, "b", externals[0].Package)
	assert.Equal(t, "react", externals[0].Spec.Name())
	assert.Equal(t, manifest.TargetGit, externals[1].Spec.Target.Kind)
}

func TestBuild_MissingWorkspaceTarget(t *testing.T) {
	t.Parallel()

	_, err := Build(packages(t, pkg("a", testutil.Dependency("ghost", "workspace:^1.0.0"))))
	require.Error(t, err)
	var missing *MissingWorkspaceTargetError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "a", missing.Package)
	assert.Equal(t, "ghost", missing.Dependency)
	assert.True(t, errors.Is(err, clierrors.ErrValidation))
}

func TestTopologicalOrder(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fixtures []fixture
		want     []string
		levels   [][]string
	}{
		"chain with independent": {
			fixtures: []fixture{
				pkg("c", testutil.Dependency("b", "^1.0.0")),
				pkg("b", testutil.Dependency("a", "^1.0.0")),
				pkg("a"),
				pkg("d"),
			},
			want:   []string{"a", "d", "b", "c"},
			levels: [][]string{{"a", "d"}, {"b"}, {"c"}},
		},
		"diamond": {
			fixtures: []fixture{
				pkg("top", testutil.Dependency("left", "^1.0.0"), testutil.Dependency("right", "^1.0.0")),
				pkg("left", testutil.Dependency("base", "^1.0.0")),
				pkg("right", testutil.Dependency("base", "^1.0.0")),
				pkg("base"),
			},
			want:   []string{"base", "left", "right", "top"},
			levels: [][]string{{"base"}, {"left", "right"}, {"top"}},
		},
		"cycle members consecutive": {
			fixtures: []fixture{
				pkg("z", testutil.Dependency("y", "^1.0.0")),
				pkg("y", testutil.Dependency("z", "^1.0.0"), testutil.Dependency("a", "^1.0.0")),
				pkg("a"),
				pkg("m", testutil.Dependency("z", "^1.0.0")),
			},
			want:   []string{"a", "y", "z", "m"},
			levels: [][]string{{"a"}, {"y", "z"}, {"m"}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := build(t, tt.fixtures...)
			assert.Equal(t, tt.want, g.TopologicalOrder())
			assert.Equal(t, tt.levels, g.Levels())
		})
	}
}

func TestTopologicalOrder_DependenciesFirst(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		var fixtures []fixture
		n := 3 + rng.Intn(12)
		for i := 0; i < n; i++ {
			var deps []testutil.Dep
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, testutil.Dependency(fmt.Sprintf("p%02d", j), "^1.0.0"))
				}
			}
			fixtures = append(fixtures, pkg(fmt.Sprintf("p%02d", i), deps...))
		}
		g := build(t, fixtures...)
		position := g.Position()
		require.Len(t, position, n)
		for _, name := range g.Names() {
			for _, dep := range g.DependenciesOf(name) {
				assert.Less(t, position[dep], position[name], "round %d: %s must come after %s", round, name, dep)
			}
		}
	}
}

func TestDetectCycles(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fixtures []fixture
		want     []Cycle
	}{
		"none": {
			fixtures: []fixture{pkg("a"), pkg("b", testutil.Dependency("a", "^1.0.0"))},
			want:     nil,
		},
		"production": {
			fixtures: []fixture{
				pkg("a", testutil.Dependency("b", "^1.0.0")),
				pkg("b", testutil.Dependency("a", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b"}, Kind: Production, Severity: Error}},
		},
		"dev only": {
			fixtures: []fixture{
				pkg("a", testutil.DevDependency("b", "^1.0.0")),
				pkg("b", testutil.DevDependency("a", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b"}, Kind: DevCycle, Severity: Warning}},
		},
		"optional only": {
			fixtures: []fixture{
				pkg("a", testutil.OptionalDependency("b", "^1.0.0")),
				pkg("b", testutil.OptionalDependency("a", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b"}, Kind: OptionalCycle, Severity: Warning}},
		},
		"mixed dev and production": {
			fixtures: []fixture{
				pkg("a", testutil.DevDependency("b", "^1.0.0")),
				pkg("b", testutil.Dependency("a", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b"}, Kind: Production, Severity: Error}},
		},
		"edge in both sections is not dev only": {
			fixtures: []fixture{
				pkg("a", testutil.DevDependency("b", "^1.0.0"), testutil.PeerDependency("b", "^1.0.0")),
				pkg("b", testutil.DevDependency("a", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b"}, Kind: Production, Severity: Error}},
		},
		"three nodes": {
			fixtures: []fixture{
				pkg("c", testutil.Dependency("a", "^1.0.0")),
				pkg("a", testutil.Dependency("b", "^1.0.0")),
				pkg("b", testutil.Dependency("c", "^1.0.0")),
			},
			want: []Cycle{{Path: []string{"a", "b", "c"}, Kind: Production, Severity: Error}},
		},
		"two separate cycles": {
			fixtures: []fixture{
				pkg("a", testutil.Dependency("b", "^1.0.0")),
				pkg("b", testutil.Dependency("a", "^1.0.0")),
				pkg("x", testutil.DevDependency("y", "^1.0.0")),
				pkg("y", testutil.DevDependency("x", "^1.0.0")),
			},
			want: []Cycle{
				{Path: []string{"a", "b"}, Kind: Production, Severity: Error},
				{Path: []string{"x", "y"}, Kind: DevCycle, Severity: Warning},
			},
		},
		"self dependency": {
			fixtures: []fixture{pkg("a", testutil.DevDependency("a", "^1.0.0"))},
			want:     []Cycle{{Path: []string{"a"}, Kind: DevCycle, Severity: Warning}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := build(t, tt.fixtures...)
			assert.Equal(t, tt.want, g.DetectCycles())
			assert.Len(t, g.TopologicalOrder(), len(tt.fixtures), "cycles never block ordering")
		})
	}
}

func TestCycle_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a -> b -> c -> a", Cycle{Path: []string{"a", "b", "c"}}.String())
}

func TestTransitiveDependents(t *testing.T) {
	t.Parallel()

	g := build(t,
		pkg("core"),
		pkg("utils", testutil.Dependency("core", "^1.0.0")),
		pkg("api", testutil.Dependency("utils", "^1.0.0")),
		pkg("web", testutil.Dependency("api", "^1.0.0"), testutil.Dependency("core", "^1.0.0")),
		pkg("docs"),
	)

	assert.Equal(t, []string{"api", "utils", "web"}, g.TransitiveDependents("core"))
	assert.Equal(t, []string{"web"}, g.TransitiveDependents("api"))
	assert.Empty(t, g.TransitiveDependents("web"))
	assert.Equal(t, []string{"api", "utils", "web"}, g.TransitiveDependents("core"), "memoised result is stable")

	affected, err := g.AffectedBy([]string{"utils", "docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "docs", "utils", "web"}, affected)

	_, err = g.AffectedBy([]string{"nope"})
	assert.True(t, errors.Is(err, clierrors.ErrNotFound))
}

func TestTransitiveDependents_Cycle(t *testing.T) {
	t.Parallel()

	g := build(t,
		pkg("a", testutil.Dependency("b", "^1.0.0")),
		pkg("b", testutil.Dependency("a", "^1.0.0")),
		pkg("c", testutil.Dependency("b", "^1.0.0")),
	)
	assert.Equal(t, []string{"b", "c"}, g.TransitiveDependents("a"))
}
