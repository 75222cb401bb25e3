package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry(t *testing.T) {
	echoDef := func(name string) ToolDefinition {
		return ToolDefinition{
			Name:        name,
			Description: "echoes its input",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"input": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"input"},
			},
			Handler: func(_ context.Context, params map[string]interface{}) (interface{}, error) {
				return params["input"], nil
			},
		}
	}

	t.Run("should register and dispatch a tool", func(t *testing.T) {
		tr := NewToolRegistry()
		require.NoError(t, tr.Register(echoDef("echo")))

		out, err := tr.Dispatch(context.Background(), "echo", map[string]interface{}{"input": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		tr := NewToolRegistry()
		require.NoError(t, tr.Register(echoDef("echo")))
		assert.Error(t, tr.Register(echoDef("echo")))
	})

	t.Run("should reject tools without a handler", func(t *testing.T) {
		tr := NewToolRegistry()
		err := tr.Register(ToolDefinition{Name: "empty"})
		assert.Error(t, err)
	})

	t.Run("should validate parameters against the schema", func(t *testing.T) {
		tr := NewToolRegistry()
		require.NoError(t, tr.Register(echoDef("echo")))

		_, err := tr.Dispatch(context.Background(), "echo", map[string]interface{}{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid parameters")
	})

	t.Run("should error on unknown tools", func(t *testing.T) {
		tr := NewToolRegistry()
		_, err := tr.Dispatch(context.Background(), "nope", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
	})

	t.Run("should marshal structured handler output", func(t *testing.T) {
		tr := NewToolRegistry()
		require.NoError(t, tr.Register(ToolDefinition{
			Name:        "structured",
			Description: "returns a map",
			Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"ok": true}, nil
			},
		}))

		out, err := tr.Dispatch(context.Background(), "structured", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, out)
	})

	t.Run("should preserve registration order in schemas", func(t *testing.T) {
		tr := NewToolRegistry()
		require.NoError(t, tr.Register(echoDef("first")))
		require.NoError(t, tr.Register(echoDef("second")))

		schemas := tr.Schemas()
		require.Len(t, schemas, 2)
		assert.Equal(t, "first", schemas[0]["name"])
		assert.Equal(t, "second", schemas[1]["name"])
	})
}
