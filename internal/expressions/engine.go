package expressions

import "context"

// Engine evaluates expressions against workflow state.
// Three implementations: CEL (edge conditions), GoJQ (transforms), Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, state map[string]any) (any, error)
}
