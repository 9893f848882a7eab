package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

// Registry keeps the mapping between tool names and implementations.
// Execution failures of any kind, including unknown tools and invalid
// parameters, come back as error Results so the model can react; the
// registry never propagates them as Go errors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool; unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders all tools in the shape providers expect.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]provider.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, provider.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema().Map(),
		})
	}
	return defs
}

// Execute runs a registered tool after schema validation. The returned
// Result is never nil.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return Errorf("Error: Tool '%s' not found", name)
	}

	if schema := tool.Schema(); schema != nil {
		if err := validateParams(params, schema); err != nil {
			return Errorf("Error: Invalid parameters for %s: %v", name, err)
		}
	}

	result := tool.Execute(ctx, params)
	if result == nil {
		return Errorf("Error executing %s: tool returned no result", name)
	}
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
