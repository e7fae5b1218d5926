package graph

import (
	"context"
	"encoding/json"

	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/pkg/schema"
)

// ToolCaller is the slice of the tool registry the builder needs.
// Satisfied by *tools.Registry (avoids an import cycle).
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// Build compiles a JSON graph definition into an executable Graph. Each node
// becomes a transform that invokes the referenced tool with its static params
// (plus the current state under the reserved "state" key) and stores the tool
// result at the node's result key. Edge conditions are compiled as CEL
// predicates over `state`.
func Build(def *schema.GraphDefinition, registry ToolCaller, cel *expressions.CELEngine) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph definition is nil")
	}
	if registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "tool registry is nil")
	}

	g := New(def.Name)

	for _, nd := range def.Nodes {
		transform, err := toolTransform(nd, registry)
		if err != nil {
			return nil, err
		}
		if err := g.AddNode(nd.ID, transform, nd.Description); err != nil {
			return nil, err
		}
	}

	for _, ed := range def.Edges {
		var pred Predicate
		if ed.Condition != "" {
			if cel == nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"edge %s->%s has a condition but no CEL engine was provided", ed.From, ed.To)
			}
			pred = &celPredicate{engine: cel, expression: ed.Condition}
		}
		g.AddEdge(ed.From, ed.To, pred, ed.Description)
	}

	if def.EntryPoint != "" {
		if err := g.SetEntryPoint(def.EntryPoint); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// toolTransform wraps a tool reference as a StateTransform.
func toolTransform(nd schema.NodeDefinition, registry ToolCaller) (StateTransform, error) {
	if nd.Tool == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %q has no tool reference", nd.ID)
	}

	var params map[string]any
	if len(nd.Params) > 0 {
		if err := json.Unmarshal(nd.Params, &params); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"node %q params: %s", nd.ID, err.Error()).WithCause(err)
		}
	}

	resultKey := nd.ResultKey
	if resultKey == "" {
		resultKey = nd.ID
	}
	toolName := nd.Tool

	return TransformFunc(func(ctx context.Context, state map[string]any) (map[string]any, error) {
		args := make(map[string]any, len(params)+1)
		for k, v := range params {
			args[k] = v
		}
		args["state"] = state

		result, err := registry.Call(ctx, toolName, args)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		// result_key "-" spreads a map result directly into state instead of
		// nesting it under a single key.
		if updates, ok := result.(map[string]any); ok && resultKey == "-" {
			return updates, nil
		}
		return map[string]any{resultKey: result}, nil
	}), nil
}

// celPredicate evaluates a CEL condition expression against the run state.
type celPredicate struct {
	engine     *expressions.CELEngine
	expression string
}

func (p *celPredicate) Eval(ctx context.Context, state map[string]any) (bool, error) {
	return p.engine.EvaluateBool(ctx, p.expression, state)
}
