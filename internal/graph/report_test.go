package graph

import (
	"testing"

	"github.com/ariel-frischer/bumpkit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	t.Parallel()

	g := build(t,
		pkg("a", testutil.Dependency("lodash", "^4.17.0")),
		pkg("b", testutil.Dependency("a", "^1.0.0")),
		pkg("x", testutil.DevDependency("y", "^1.0.0")),
		pkg("y", testutil.DevDependency("x", "^1.0.0")),
	)

	r := g.Report()
	require.Len(t, r.Order, 4)
	assert.Equal(t, OrderEntry{Position: 1, Level: 0, Name: "a", Version: "1.0.0"}, r.Order[0])
	assert.Equal(t, "x", r.Order[1].Name)
	assert.Equal(t, "y", r.Order[2].Name)
	assert.Equal(t, OrderEntry{Position: 4, Level: 1, Name: "b", Version: "1.0.0", Dependencies: []string{"a"}}, r.Order[3])
	require.Len(t, r.Cycles, 1)
	require.Len(t, r.Externals, 1)
	assert.Equal(t, ExternalEntry{Package: "a", Name: "lodash", Section: "dependencies", Target: "registry", Spec: "^4.17.0"}, r.Externals[0])

	ascii := RenderASCII(r)
	assert.Contains(t, ascii, "Packages: 4  |  Levels: 2  |  Cycles: 1")
	assert.Contains(t, ascii, "[L0]")
	assert.Contains(t, ascii, "  +- 4. b@1.0.0 --> a")
	assert.Contains(t, ascii, "[warning] x -> y -> x (dev)")

	assert.Equal(t, "L0: [a, x, y] -> L1: [b]", RenderCompact(r))
}

func TestRenderASCII_Empty(t *testing.T) {
	t.Parallel()

	g := build(t)
	assert.Equal(t, "Workspace has no packages.\n", RenderASCII(g.Report()))
	assert.Equal(t, "Empty workspace", RenderCompact(g.Report()))
}
