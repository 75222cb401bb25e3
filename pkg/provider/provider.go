package provider

import (
	"context"
	"fmt"
	"strings"
)

// CompletionProvider is the interface for LLM completion backends.
// A completion either names a function call or carries terminal text.
type CompletionProvider interface {
	// Complete makes a completion API call
	Complete(ctx context.Context, request Request) (*Completion, error)

	// Name returns the provider name
	Name() string
}

// Request contains the parameters for a completion call
type Request struct {
	Model        string
	Messages     []Message
	Tools        []map[string]interface{}
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Message represents one transcript entry
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []FunctionCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// FunctionCall is a tool invocation requested by the provider
type FunctionCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Completion contains the response from a completion call
type Completion struct {
	Content   string
	ToolCalls []FunctionCall
	Usage     *TokenUsage
}

// IsFunctionCall reports whether the provider requested a tool dispatch
func (c *Completion) IsFunctionCall() bool {
	return len(c.ToolCalls) > 0
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Credentials configures a concrete provider
type Credentials struct {
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
}

// Creator creates completion providers from credentials.
type Creator interface {
	NewProvider(creds Credentials) (CompletionProvider, error)
}

// Factory creates completion providers
type Factory struct{}

// NewProvider creates a new completion provider from credentials
func (f *Factory) NewProvider(creds Credentials) (CompletionProvider, error) {
	switch creds.Provider {
	case "anthropic":
		return NewAnthropicProvider(creds.APIKey), nil
	case "openai":
		return NewOpenAIProvider(creds.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", creds.Provider)
	}
}

// IsRetryableError checks if a provider error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	for _, marker := range []string{
		"ECONNRESET", "ETIMEDOUT",
		"429", "rate limit",
		"500", "502", "503", "504",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}

	return false
}
