package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/rendis/stateflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(_ context.Context, _ map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestGraph_AddNode_Duplicate(t *testing.T) {
	g := New("dup")
	require.NoError(t, g.AddNode("a", TransformFunc(noop), ""))

	err := g.AddNode("a", TransformFunc(noop), "")
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeDuplicateNode, flowErr.Code)
}

func TestGraph_AddNode_FirstNodeBecomesEntryPoint(t *testing.T) {
	g := New("entry")
	require.NoError(t, g.AddNode("first", TransformFunc(noop), ""))
	require.NoError(t, g.AddNode("second", TransformFunc(noop), ""))
	assert.Equal(t, "first", g.EntryPoint())
}

func TestGraph_SetEntryPoint_Unknown(t *testing.T) {
	g := New("entry")
	require.NoError(t, g.AddNode("a", TransformFunc(noop), ""))

	err := g.SetEntryPoint("missing")
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeUnknownNode, flowErr.Code)
}

func TestGraph_AddEdge_DeferredEndpointValidation(t *testing.T) {
	g := New("deferred")
	// Edges may reference nodes added later.
	g.AddEdge("a", "b", nil, "")
	require.NoError(t, g.AddNode("a", TransformFunc(noop), ""))

	valid, msg := g.Validate()
	assert.False(t, valid)
	assert.Contains(t, msg, `unknown destination node "b"`)

	require.NoError(t, g.AddNode("b", TransformFunc(noop), ""))
	valid, msg = g.Validate()
	assert.True(t, valid)
	assert.Empty(t, msg)
}

func TestGraph_Validate_Cases(t *testing.T) {
	t.Run("no nodes", func(t *testing.T) {
		g := New("empty")
		valid, msg := g.Validate()
		assert.False(t, valid)
		assert.Equal(t, "graph has no nodes", msg)
	})

	t.Run("idempotent", func(t *testing.T) {
		g := New("idem")
		require.NoError(t, g.AddNode("a", TransformFunc(noop), ""))
		for i := 0; i < 3; i++ {
			valid, msg := g.Validate()
			assert.True(t, valid)
			assert.Empty(t, msg)
		}
	})
}

func TestGraph_Nodes_InsertionOrder(t *testing.T) {
	g := New("order")
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, g.AddNode(id, TransformFunc(noop), ""))
	}

	var ids []string
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestGraph_NextNodes_EdgeInsertionOrder(t *testing.T) {
	g := New("branch")
	for _, id := range []string{"check", "x", "y"} {
		require.NoError(t, g.AddNode(id, TransformFunc(noop), ""))
	}
	g.AddEdge("check", "x", nil, "")
	g.AddEdge("check", "y", nil, "")

	next, err := g.NextNodes(context.Background(), "check", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, next)
}

func TestGraph_NextNodes_PredicateFiltering(t *testing.T) {
	g := New("cond")
	for _, id := range []string{"check", "high", "low"} {
		require.NoError(t, g.AddNode(id, TransformFunc(noop), ""))
	}
	above := PredicateFunc(func(_ context.Context, s map[string]any) (bool, error) {
		return s["x"].(int) > 100, nil
	})
	below := PredicateFunc(func(_ context.Context, s map[string]any) (bool, error) {
		return s["x"].(int) <= 100, nil
	})
	g.AddEdge("check", "high", above, "")
	g.AddEdge("check", "low", below, "")

	next, err := g.NextNodes(context.Background(), "check", map[string]any{"x": 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"low"}, next)
}

func TestGraph_NextNodes_ErroringPredicateNonMatching(t *testing.T) {
	g := New("bad-pred")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNode(id, TransformFunc(noop), ""))
	}
	boom := PredicateFunc(func(_ context.Context, _ map[string]any) (bool, error) {
		return false, errors.New("boom")
	})
	g.AddEdge("a", "b", boom, "")
	g.AddEdge("a", "c", nil, "")

	next, err := g.NextNodes(context.Background(), "a", map[string]any{})
	// The erroring edge is skipped but the error is reported for strict callers.
	assert.Equal(t, []string{"c"}, next)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeRoutingFailed, flowErr.Code)
}

func TestGraph_NextNodes_NoEdges(t *testing.T) {
	g := New("leaf")
	require.NoError(t, g.AddNode("a", TransformFunc(noop), ""))

	next, err := g.NextNodes(context.Background(), "a", map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, next)
}
