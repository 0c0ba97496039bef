package tools

import (
	"fmt"
	"sort"
)

// Registry manages all registered tools. It is not synchronized: populate it
// before dispatching and treat it as read-only afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Define registers a function-backed tool.
func (r *Registry) Define(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	r.Register(definedTool{def: def})
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// ToSchemas converts all tools to a list of schema maps.
// Format: [{"name": "...", "description": "...", "input_schema": {"type":"object","properties":{...}}}]
func (r *Registry) ToSchemas() []map[string]any {
	tools := r.All()
	schemas := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"input_schema": map[string]any{
				"type":       "object",
				"properties": t.Parameters(),
			},
		})
	}
	return schemas
}

// DefaultRegistry creates a registry with all built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range BuiltinDefinitions() {
		// Built-in definitions always carry a name and handler.
		_ = r.Define(def)
	}
	return r
}
