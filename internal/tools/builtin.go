package tools

import (
	"context"

	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/pkg/schema"
)

// RegisterBuiltins registers the expression-backed tools every deployment
// ships with:
//
//	cel       — evaluate a CEL expression against the state
//	expr.eval — evaluate an expr-lang expression with state keys as variables
//	jq        — run a jq query over the state
//
// The builder passes the current run state under the reserved "state" arg,
// so definition-driven nodes can transform state without custom Go code.
func RegisterBuiltins(r *Registry, cel *expressions.CELEngine, exprEng *expressions.ExprEngine, jq *expressions.GoJQEngine) error {
	if cel != nil {
		if err := r.Register(engineTool("cel", "Evaluate a CEL expression against the run state", cel, "expression")); err != nil {
			return err
		}
	}
	if exprEng != nil {
		if err := r.Register(engineTool("expr.eval", "Evaluate an expr-lang expression with state keys as variables", exprEng, "expression")); err != nil {
			return err
		}
	}
	if jq != nil {
		if err := r.Register(engineTool("jq", "Run a jq query over the run state", jq, "query")); err != nil {
			return err
		}
	}
	return nil
}

// engineTool wraps an expression engine as a Tool. argKey names the argument
// carrying the expression source ("expression" or "query").
func engineTool(name, description string, engine expressions.Engine, argKey string) Tool {
	return NewTool(name, description, func(ctx context.Context, args map[string]any) (any, error) {
		src, ok := args[argKey].(string)
		if !ok || src == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"tool %q requires a non-empty %q argument", name, argKey)
		}
		state, _ := args["state"].(map[string]any)
		return engine.Evaluate(ctx, src, state)
	})
}
