package daemon

import (
	"context"
	"fmt"

	"github.com/ToFut/Tredy-sub001/internal/tracing"
	"github.com/ToFut/Tredy-sub001/pkg/flow"
	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// registerTools installs the built-in tool surface every session sees
func (d *Daemon) registerTools() error {
	if err := flow.RegisterTools(d.tools, d.compiler, d.executor); err != nil {
		return err
	}

	if err := d.tools.Register(runtime.ToolDefinition{
		Name:        "web_scrape",
		Description: "Fetch a web page and return its visible text. An optional CSS selector narrows extraction to one element.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The page URL to fetch",
				},
				"selector": map[string]interface{}{
					"type":        "string",
					"description": "Optional CSS selector",
				},
			},
			"required": []interface{}{"url"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			url, _ := params["url"].(string)
			selector, _ := params["selector"].(string)
			return d.scraper.Scrape(ctx, url, selector)
		},
	}); err != nil {
		return err
	}

	apiCaller := flow.NewHTTPAPICaller(0)
	if err := d.tools.Register(runtime.ToolDefinition{
		Name:        "api_call",
		Description: "Perform an HTTP request and return the response body.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"method": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"GET", "POST", "PUT", "PATCH", "DELETE"},
				},
				"url": map[string]interface{}{
					"type": "string",
				},
				"body": map[string]interface{}{
					"type":        "string",
					"description": "Optional request body",
				},
			},
			"required": []interface{}{"method", "url"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			method, _ := params["method"].(string)
			url, _ := params["url"].(string)
			body, _ := params["body"].(string)
			return apiCaller.Call(ctx, method, url, nil, body)
		},
	}); err != nil {
		return err
	}

	return d.tools.Register(runtime.ToolDefinition{
		Name:        "send_message",
		Description: "Send a message to one recipient. Call once per recipient when a request names several.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"recipient": map[string]interface{}{
					"type":        "string",
					"description": "Email address or name of the recipient",
				},
				"message": map[string]interface{}{
					"type": "string",
				},
			},
			"required": []interface{}{"recipient", "message"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			recipient, _ := params["recipient"].(string)
			message, _ := params["message"].(string)

			if workspaceID := tracing.GetWorkspaceID(ctx); workspaceID != "" {
				d.registry.Deliver(workspaceID, runtime.Event{
					Type:    runtime.EventStatusResponse,
					Content: fmt.Sprintf("Message to %s: %s", recipient, message),
				})
			}
			return fmt.Sprintf("delivered to %s", recipient), nil
		},
	})
}
