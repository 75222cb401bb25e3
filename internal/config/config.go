package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Completion provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Orchestration runtime
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`

	// Workflow engine
	Flows FlowsConfig `json:"flows" mapstructure:"flows"`

	// Scheduled workspace notifications
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`

	// Span export
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the websocket server configuration
type ServerConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// ProviderConfig selects and configures the completion provider
type ProviderConfig struct {
	Name        string  `json:"name" mapstructure:"name"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// RuntimeConfig holds orchestration runtime settings
type RuntimeConfig struct {
	MaxTurns          int    `json:"max_turns" mapstructure:"max_turns"`
	FeedbackTimeoutMs int64  `json:"feedback_timeout_ms" mapstructure:"feedback_timeout_ms"`
	Introspection     bool   `json:"introspection" mapstructure:"introspection"`
	FeedbackGate      bool   `json:"feedback_gate" mapstructure:"feedback_gate"`
	SystemPrompt      string `json:"system_prompt" mapstructure:"system_prompt"`
}

// FlowsConfig holds workflow engine settings
type FlowsConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// SchedulerConfig holds scheduled notification jobs
type SchedulerConfig struct {
	Jobs []ScheduledJob `json:"jobs" mapstructure:"jobs"`
}

// ScheduledJob is one cron-driven workspace notification
type ScheduledJob struct {
	WorkspaceID string `json:"workspace_id" mapstructure:"workspace_id"`
	Spec        string `json:"spec" mapstructure:"spec"`
	Message     string `json:"message" mapstructure:"message"`
}

// TracingConfig holds span export settings. An empty endpoint keeps
// tracing in-process.
type TracingConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3001,
			Host: "0.0.0.0",
		},
		Provider: ProviderConfig{
			Name:        "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Runtime: RuntimeConfig{
			MaxTurns:          10,
			FeedbackTimeoutMs: 5 * 60 * 1000,
			Introspection:     true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// String returns a JSON representation with the API key masked
func (c *Config) String() string {
	clone := *c
	if clone.Provider.APIKey != "" {
		clone.Provider.APIKey = "***"
	}
	data, err := json.MarshalIndent(&clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}
