package validation

import "github.com/rendis/stateflow/pkg/schema"

// Validator checks graph definitions for correctness before they are built
// or stored. Uses JSON Schema Draft 2020-12 for structural validation.
type Validator interface {
	ValidateDefinition(def *schema.GraphDefinition) error
	ValidateInitialState(state map[string]any, stateSchema []byte) error
}

// ToolLookup reports whether a tool name is registered. Implemented by the
// tool registry; may be nil to skip tool existence checks.
type ToolLookup interface {
	Has(name string) bool
}

// ConditionChecker compiles an edge condition to catch syntax errors early.
// Implemented by the CEL engine; may be nil to skip condition checks.
type ConditionChecker interface {
	Check(expression string) error
}
