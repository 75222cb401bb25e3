package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Handler     ToolHandler            `json:"-"`
}

// ToolRegistry manages the tools available to a runtime session
type ToolRegistry struct {
	tools   map[string]*ToolDefinition
	order   []string
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewToolRegistry creates an empty tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool, compiling its input schema for validation
func (tr *ToolRegistry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, exists := tr.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	if def.InputSchema != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for tool %s: %w", def.Name, err)
		}
		tr.schemas[def.Name] = schema
	}

	tr.tools[def.Name] = &def
	tr.order = append(tr.order, def.Name)

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name
func (tr *ToolRegistry) Get(name string) *ToolDefinition {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.tools[name]
}

// Schemas returns tool descriptors in the completion-provider format
func (tr *ToolRegistry) Schemas() []map[string]interface{} {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	descriptors := make([]map[string]interface{}, 0, len(tr.order))
	for _, name := range tr.order {
		def := tr.tools[name]
		inputSchema := def.InputSchema
		if inputSchema == nil {
			inputSchema = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		descriptors = append(descriptors, map[string]interface{}{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": inputSchema,
		})
	}
	return descriptors
}

// Dispatch validates parameters and runs the named tool handler. The
// returned string is the function-role transcript content.
func (tr *ToolRegistry) Dispatch(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	tr.mu.RLock()
	def := tr.tools[name]
	schema := tr.schemas[name]
	tr.mu.RUnlock()

	if def == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(params))
		if err != nil {
			return "", fmt.Errorf("failed to validate parameters for %s: %w", name, err)
		}
		if !result.Valid() {
			errs := ""
			for _, desc := range result.Errors() {
				errs += desc.String() + "; "
			}
			return "", fmt.Errorf("invalid parameters for %s: %s", name, errs)
		}
	}

	output, err := def.Handler(ctx, params)
	if err != nil {
		return "", err
	}

	switch v := output.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}
