package validation

import (
	"fmt"

	"github.com/rendis/stateflow/pkg/schema"
)

// validateSemantic performs reference analysis on a graph definition:
// duplicate node IDs, entry point existence, edge endpoint existence, tool
// registration, and edge condition syntax.
func validateSemantic(def *schema.GraphDefinition, tools ToolLookup, conditions ConditionChecker) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if nodeIDs[n.ID] {
			result.AddError(path+".id", schema.ErrCodeDuplicateNode,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodeIDs[n.ID] = true

		if tools != nil && !tools.Has(n.Tool) {
			result.AddError(path+".tool", schema.ErrCodeToolNotFound,
				fmt.Sprintf("tool %q not registered", n.Tool))
		}
	}

	if def.EntryPoint != "" && !nodeIDs[def.EntryPoint] {
		result.AddError("entry_point", schema.ErrCodeUnknownNode,
			fmt.Sprintf("entry point %q does not exist", def.EntryPoint))
	}

	for i, e := range def.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if !nodeIDs[e.From] {
			result.AddError(path+".from", schema.ErrCodeUnknownNode,
				fmt.Sprintf("references non-existent node %q", e.From))
		}
		if !nodeIDs[e.To] {
			result.AddError(path+".to", schema.ErrCodeUnknownNode,
				fmt.Sprintf("references non-existent node %q", e.To))
		}
		if e.Condition != "" && conditions != nil {
			if err := conditions.Check(e.Condition); err != nil {
				result.AddError(path+".condition", schema.ErrCodeValidation,
					fmt.Sprintf("condition does not compile: %s", err.Error()))
			}
		}
	}

	return result
}
