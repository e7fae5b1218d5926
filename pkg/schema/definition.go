package schema

import "encoding/json"

// GraphDefinition is the JSON-serializable graph format. It is the shape
// stored by the persistence layer and accepted by stateflow.define; node
// logic is referenced by tool name rather than carried inline.
type GraphDefinition struct {
	Name       string           `json:"name"`
	EntryPoint string           `json:"entry_point"`
	Nodes      []NodeDefinition `json:"nodes"`
	Edges      []EdgeDefinition `json:"edges,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// NodeDefinition describes a single node in a graph definition.
type NodeDefinition struct {
	ID          string          `json:"id"`
	Tool        string          `json:"tool"`                 // registered tool name (e.g. "jq", "expr.eval")
	Params      json.RawMessage `json:"params,omitempty"`     // static tool arguments
	ResultKey   string          `json:"result_key,omitempty"` // state key receiving the tool result (default: node id)
	Description string          `json:"description,omitempty"`
}

// EdgeDefinition describes a directed transition between two nodes.
// An empty condition means the edge is always taken.
type EdgeDefinition struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Condition   string `json:"condition,omitempty"` // CEL expression over `state`
	Description string `json:"description,omitempty"`
}
