package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/provider"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("ANTHROPIC_API_KEY overrides file key", func(t *testing.T) {
		t.Setenv(provider.EnvAnthropicKey, "env-ant")

		cfg := &Config{AnthropicAPIKey: "file-ant"}
		cfg.applyEnvOverrides()

		assert.Equal(t, "env-ant", cfg.AnthropicAPIKey)
	})

	t.Run("empty env vars leave file values alone", func(t *testing.T) {
		t.Setenv(provider.EnvAnthropicKey, "")
		t.Setenv(provider.EnvOpenAIKey, "")

		cfg := &Config{AnthropicAPIKey: "file-ant", OpenAIAPIKey: "file-oa"}
		cfg.applyEnvOverrides()

		assert.Equal(t, "file-ant", cfg.AnthropicAPIKey)
		assert.Equal(t, "file-oa", cfg.OpenAIAPIKey)
	})

	t.Run("each provider key maps to its own field", func(t *testing.T) {
		t.Setenv(provider.EnvAnthropicKey, "a")
		t.Setenv(provider.EnvOpenAIKey, "o")
		t.Setenv(provider.EnvGeminiKey, "g")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "a", cfg.AnthropicAPIKey)
		assert.Equal(t, "o", cfg.OpenAIAPIKey)
		assert.Equal(t, "g", cfg.GeminiAPIKey)
	})

	t.Run("MNEMO_DB and MNEMO_MODEL override file settings", func(t *testing.T) {
		t.Setenv("MNEMO_DB", "/env/mnemo.db")
		t.Setenv("MNEMO_MODEL", "env-model")

		cfg := &Config{DBPath: "/file/mnemo.db", Model: "file-model"}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/env/mnemo.db", cfg.DBPath)
		assert.Equal(t, "env-model", cfg.Model)
	})

	t.Run("env key feeds provider detection", func(t *testing.T) {
		t.Setenv(provider.EnvAnthropicKey, "")
		t.Setenv(provider.EnvOpenAIKey, "env-oa")
		t.Setenv(provider.EnvGeminiKey, "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		p, key, err := cfg.ActiveProvider()
		require.NoError(t, err)
		assert.Equal(t, provider.ProviderOpenAI, p)
		assert.Equal(t, "env-oa", key)
	})
}
