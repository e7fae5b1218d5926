package graph

import "context"

// Predicate gates an edge. Eval receives the current state and reports
// whether the edge qualifies. Predicates must be side-effect-free and must
// not mutate the state map.
type Predicate interface {
	Eval(ctx context.Context, state map[string]any) (bool, error)
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(ctx context.Context, state map[string]any) (bool, error)

// Eval calls f.
func (f PredicateFunc) Eval(ctx context.Context, state map[string]any) (bool, error) {
	return f(ctx, state)
}

// Edge is a directed transition between two nodes. A nil Predicate means the
// edge is always taken. Multiple edges may share the same From node; the
// executor follows the first qualifying edge in insertion order.
type Edge struct {
	From        string
	To          string
	Predicate   Predicate
	Description string
}
