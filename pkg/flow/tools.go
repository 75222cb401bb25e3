package flow

import (
	"context"
	"fmt"

	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// RegisterTools exposes the compiler and executor as runtime tools so
// a session can build and run workflows mid-conversation.
func RegisterTools(registry *runtime.ToolRegistry, compiler *Compiler, executor *Executor) error {
	if err := registry.Register(runtime.ToolDefinition{
		Name:        "build_workflow",
		Description: "Compile a natural-language task description into a reusable multi-step workflow. Returns the workflow uuid and its steps.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"description": map[string]interface{}{
					"type":        "string",
					"description": "What the workflow should accomplish, in plain language",
				},
			},
			"required": []interface{}{"description"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			description, _ := params["description"].(string)
			flow, err := compiler.Compile(ctx, description)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"uuid":  flow.UUID,
				"name":  flow.Name,
				"steps": flow.Steps,
			}, nil
		},
	}); err != nil {
		return err
	}

	return registry.Register(runtime.ToolDefinition{
		Name:        "run_workflow",
		Description: "Execute a previously built workflow by uuid, optionally seeding variables referenced by its steps.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"uuid": map[string]interface{}{
					"type":        "string",
					"description": "The workflow uuid returned by build_workflow",
				},
				"variables": map[string]interface{}{
					"type":        "object",
					"description": "Initial variable bindings by name",
					"additionalProperties": map[string]interface{}{
						"type": "string",
					},
				},
			},
			"required": []interface{}{"uuid"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			flowUUID, _ := params["uuid"].(string)
			vars := make(map[string]string)
			if raw, ok := params["variables"].(map[string]interface{}); ok {
				for name, value := range raw {
					str, ok := value.(string)
					if !ok {
						return nil, fmt.Errorf("variable %s must be a string", name)
					}
					vars[name] = str
				}
			}
			return executor.Execute(ctx, flowUUID, vars)
		},
	})
}
