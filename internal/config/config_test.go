package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 10, cfg.Runtime.MaxTurns)
	assert.Equal(t, int64(5*60*1000), cfg.Runtime.FeedbackTimeoutMs)
	assert.True(t, cfg.Runtime.Introspection)
}

func TestConfigString(t *testing.T) {
	t.Run("should mask the api key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider.APIKey = "sk-ant-secret"

		s := cfg.String()
		assert.NotContains(t, s, "sk-ant-secret")
		assert.Contains(t, s, "***")
	})
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults when the file is missing", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))
		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 3001, cfg.Server.Port)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Flows.Dir)
	})

	t.Run("should apply TREDY_ environment overrides without a file", func(t *testing.T) {
		t.Setenv("TREDY_SERVER_PORT", "5005")
		t.Setenv("TREDY_PROVIDER_NAME", "openai")

		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))
		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 5005, cfg.Server.Port)
		assert.Equal(t, "openai", cfg.Provider.Name)
	})

	t.Run("should let environment overrides win over the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tredy.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.Server.Port = 4002
		require.NoError(t, loader.Save(cfg))

		t.Setenv("TREDY_SERVER_PORT", "4999")
		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 4999, loaded.Server.Port)
	})

	t.Run("should round-trip through save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tredy.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.Server.Port = 4002
		cfg.Provider.APIKey = "sk-ant-test"
		require.NoError(t, loader.Save(cfg))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "sk-ant-test"), "saved config must keep the real key")

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 4002, loaded.Server.Port)
		assert.Equal(t, "sk-ant-test", loaded.Provider.APIKey)
	})
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	validConfig := func() *Config {
		cfg := DefaultConfig()
		cfg.Provider.APIKey = "sk-ant-test"
		return cfg
	}

	t.Run("should accept a valid config", func(t *testing.T) {
		assert.NoError(t, v.Validate(validConfig()))
	})

	t.Run("should reject an invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 0
		assert.Error(t, v.Validate(cfg))
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		assert.Error(t, v.ValidateProvider("mistral"))
		assert.NoError(t, v.ValidateProvider("anthropic"))
		assert.NoError(t, v.ValidateProvider("openai"))
	})

	t.Run("should reject malformed api keys", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("sk-wrong", "anthropic"))
		assert.NoError(t, v.ValidateAPIKey("sk-ant-ok", "anthropic"))
		assert.NoError(t, v.ValidateAPIKey("sk-ok", "openai"))
	})

	t.Run("should reject out-of-range temperature", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.Temperature = 1.5
		assert.Error(t, v.Validate(cfg))
	})

	t.Run("should reject a non-positive feedback timeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Runtime.FeedbackTimeoutMs = 0
		assert.Error(t, v.Validate(cfg))
	})

	t.Run("should reject an out-of-range sample ratio", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tracing.SampleRatio = 1.5
		assert.Error(t, v.Validate(cfg))
	})
}
