package validation

import "github.com/rendis/stateflow/pkg/schema"

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (node/edge refs, tool existence, condition syntax)
// 3. Topology (reachability, unconditional cycles)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	tools      ToolLookup
	conditions ConditionChecker
}

// NewGraphValidator creates a GraphValidator. tools and conditions may each
// be nil to skip the corresponding checks.
func NewGraphValidator(tools ToolLookup, conditions ConditionChecker) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{
		jsonSchema: jsv,
		tools:      tools,
		conditions: conditions,
	}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and topology stages are skipped.
func (gv *GraphValidator) Validate(def *schema.GraphDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "graph definition is nil")
		return r
	}

	result := validateStructural(gv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, gv.tools, gv.conditions))

	// Topology analysis only makes sense once references resolve.
	if result.Valid() {
		result.Merge(validateTopology(def))
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (gv *GraphValidator) ValidateDefinition(def *schema.GraphDefinition) error {
	return gv.Validate(def).ToError()
}

// ValidateInitialState delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateInitialState(state map[string]any, stateSchema []byte) error {
	return gv.jsonSchema.ValidateInitialState(state, stateSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.GraphDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if fe.Details != nil {
		if violations, ok := fe.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}
