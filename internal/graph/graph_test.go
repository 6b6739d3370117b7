package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/execctx"
	"github.com/smthngslv/mycelia/internal/graph"
)

func noop(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error) {
	return nil, nil
}

func TestGraph_RegisterAndLookup(t *testing.T) {
	g := graph.New("g1")

	n, err := g.Register("hello", graph.Schema{}, noop)
	require.NoError(t, err)
	assert.Equal(t, "hello", n.Name())
	assert.Equal(t, "g1", n.Ref().GraphID)
	assert.Equal(t, "hello", n.Ref().Node)

	found, err := g.Lookup("hello")
	require.NoError(t, err)
	assert.Same(t, n, found)
}

func TestGraph_DuplicateRegistration(t *testing.T) {
	g := graph.New("g1")

	_, err := g.Register("hello", graph.Schema{}, noop)
	require.NoError(t, err)

	_, err = g.Register("hello", graph.Schema{}, noop)
	require.Error(t, err)

	var target *graph.DuplicateNodeRegistrationError
	require.ErrorAs(t, err, &target)
}

func TestGraph_LookupMissing(t *testing.T) {
	g := graph.New("g1")

	_, err := g.Lookup("missing")
	require.Error(t, err)

	var target *graph.NodeNotRegisteredError
	require.ErrorAs(t, err, &target)
}

func TestGraph_OpenRejectsFurtherRegistration(t *testing.T) {
	g := graph.New("g1")
	g.Open()

	_, err := g.Register("hello", graph.Schema{}, noop)
	require.Error(t, err)

	var target *graph.GraphClosedError
	require.ErrorAs(t, err, &target)
}

func TestGraph_Invoke(t *testing.T) {
	g := graph.New("g1")
	n, err := g.Register("hello", graph.Schema{}, noop)
	require.NoError(t, err)

	d := n.Invoke([]any{1, 2}, map[string]any{"k": "v"})
	require.True(t, d.IsCall())

	ref, args, kwargs := d.Invocation()
	assert.Equal(t, n.Ref(), ref)
	assert.Equal(t, []any{1, 2}, args)
	assert.Equal(t, map[string]any{"k": "v"}, kwargs)
}
