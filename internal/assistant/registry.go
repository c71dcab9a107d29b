package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// Tool defines the interface for a tool
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args string) (string, error)
}

// UnknownToolError is returned when the assistant asks for a tool that is not registered
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ToolRegistry manages the available tools. Definitions and dispatch share the
// same map, so every advertised schema has a handler and vice versa.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Definition().Name] = t
}

// Get retrieves a tool by name
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch runs the named tool, failing with *UnknownToolError if it is not registered
func (r *ToolRegistry) Dispatch(ctx context.Context, name, args string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &UnknownToolError{Name: name}
	}
	return t.Execute(ctx, args)
}

// Names returns the registered tool names in sorted order
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of all registered tools, sorted by name
func (r *ToolRegistry) Definitions() []ToolDefinition {
	names := r.Names()
	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// GenerateSchema derives a JSON Schema for a tool's argument struct.
// Fields without omitempty are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return schema
}

// ParseArgs decodes a tool call's JSON arguments
func ParseArgs(args string, v interface{}) error {
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
