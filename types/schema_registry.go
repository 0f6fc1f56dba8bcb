package types

import "sync"

// SchemaRegistry provides centralized access to tool schemas so callers can
// register a schema once instead of threading it through every call
type SchemaRegistry interface {
	// GetSchema retrieves a tool schema by name
	GetSchema(toolName string) (*Tool, bool)

	// ListTools returns all registered tool names
	ListTools() []string

	// RegisterTool adds or updates a tool schema
	RegisterTool(tool *Tool) error
}

// StandardSchemaRegistry is the default in-memory implementation of
// SchemaRegistry. Safe for concurrent use.
type StandardSchemaRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewStandardSchemaRegistry creates an empty registry
func NewStandardSchemaRegistry() *StandardSchemaRegistry {
	return &StandardSchemaRegistry{
		tools: make(map[string]*Tool),
	}
}

// GetSchema retrieves a tool schema by name
func (r *StandardSchemaRegistry) GetSchema(toolName string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[toolName]
	return tool, exists
}

// ListTools returns all registered tool names
func (r *StandardSchemaRegistry) ListTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// RegisterTool adds or updates a tool schema. Nil tools are ignored.
func (r *StandardSchemaRegistry) RegisterTool(tool *Tool) error {
	if tool == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}
