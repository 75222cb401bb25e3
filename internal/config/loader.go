package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".tredy", "tredy.json")
	}

	v := viper.New()
	v.SetEnvPrefix("TREDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	// A missing file is fine; env overrides and defaults still apply
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnvKeys registers every scalar config key with its TREDY_ env
// name. Viper only consults the environment for keys it knows about,
// so without the explicit binds Unmarshal would ignore overrides for
// keys absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port", "server.host",
		"provider.name", "provider.api_key", "provider.model",
		"provider.temperature", "provider.max_tokens",
		"runtime.max_turns", "runtime.feedback_timeout_ms",
		"runtime.introspection", "runtime.feedback_gate", "runtime.system_prompt",
		"flows.dir",
		"tracing.otlp_endpoint", "tracing.sample_ratio",
		"logging.level", "logging.file", "logging.console", "logging.pretty",
		"data_dir",
	} {
		_ = v.BindEnv(key, "TREDY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

// applyDefaults fills derived paths that depend on the data directory
func applyDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".tredy")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "tredy.log")
	}

	if cfg.Flows.Dir == "" {
		cfg.Flows.Dir = filepath.Join(cfg.DataDir, "flows")
	}

	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".tredy", "tredy.json")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
