package tools

import "context"

// Tool is a named callable that node transforms may invoke. The executor
// itself never touches tools; they are consumed only from node bodies.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// funcTool adapts a plain function to Tool.
type funcTool struct {
	name string
	desc string
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

// NewTool wraps a function as a Tool.
func NewTool(name, description string, fn func(ctx context.Context, args map[string]any) (any, error)) Tool {
	return &funcTool{name: name, desc: description, fn: fn}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.desc }

func (t *funcTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
