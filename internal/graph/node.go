package graph

import "context"

// StateTransform is the unit of node logic. Apply receives read access to the
// full accumulated state and returns a partial state to merge back, or an
// error. Implementations must not mutate the passed-in state map; the
// executor relies on snapshot-then-merge semantics.
type StateTransform interface {
	Apply(ctx context.Context, state map[string]any) (map[string]any, error)
}

// TransformFunc adapts a plain function to StateTransform.
type TransformFunc func(ctx context.Context, state map[string]any) (map[string]any, error)

// Apply calls f.
func (f TransformFunc) Apply(ctx context.Context, state map[string]any) (map[string]any, error) {
	return f(ctx, state)
}

// Node is a named unit of work within a graph. The ID is immutable once the
// node is added to a graph.
type Node struct {
	ID          string
	Transform   StateTransform
	Description string
}
