package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/stateflow/pkg/schema"
)

// Registry is a thread-safe collection of named tools. Registries are
// explicitly constructed and injected rather than process-global, so tests
// can instantiate isolated registries per run.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry. logger may be nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry. Registering a name that already
// exists overwrites the previous tool.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	r.mu.Lock()
	_, replaced := r.tools[name]
	r.tools[name] = tool
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("tool overwritten", slog.String("tool", name))
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeToolNotFound, "tool %q not registered", name)
	}
	return tool, nil
}

// Call invokes a registered tool. Lookup failures are TOOL_NOT_FOUND; the
// tool's own failures propagate unchanged.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return tool.Call(ctx, args)
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns info for all registered tools, sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
