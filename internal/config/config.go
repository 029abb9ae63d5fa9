// Package config loads and persists user configuration from
// .mnemo/config.json and layers environment overrides on top. The file
// is optional: a missing file yields a config of defaults so first run
// works with nothing but an API key in the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mnemo/internal/embedding"
	"mnemo/internal/provider"
)

// FileName is the config file name under the mnemo directory.
const FileName = "config.json"

// EnvConfigDir overrides the default ~/.mnemo directory.
const EnvConfigDir = "MNEMO_DIR"

// Config holds all user configuration from .mnemo/config.json.
type Config struct {
	// Provider selection (anthropic, openai, gemini). Empty means
	// auto-detect from whichever API key is present.
	Provider string `json:"provider,omitempty"`

	// API keys per provider. Environment variables of the same names
	// the providers document (ANTHROPIC_API_KEY etc.) take precedence.
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`

	// Optional model override for the active provider.
	Model string `json:"model,omitempty"`

	// ThinkingBudget is the default extended-thinking token budget for
	// turns. Zero disables thinking.
	ThinkingBudget int `json:"thinking_budget,omitempty"`

	// WebSearch enables provider-side web search by default. Turns
	// that execute tools ignore this; search and tools are exclusive.
	WebSearch bool `json:"web_search,omitempty"`

	// DBPath is the sqlite database location. Defaults to
	// <mnemo dir>/mnemo.db.
	DBPath string `json:"db_path,omitempty"`

	// VersionQuietSeconds is how long a note must sit unedited before
	// a version snapshot is recorded.
	VersionQuietSeconds int `json:"version_quiet_seconds,omitempty"`

	// ConnectionThreshold is the minimum cosine similarity for a
	// connection suggestion. Zero means the built-in default.
	ConnectionThreshold float64 `json:"connection_threshold,omitempty"`

	// Embedding engine settings for connection discovery.
	Embedding *embedding.Config `json:"embedding,omitempty"`

	// LogLevel for the zap logger: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// Dir returns the mnemo configuration directory, honoring MNEMO_DIR.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mnemo"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads configuration from path. A missing file is not an error;
// it returns a config of defaults. Environment overrides are applied
// after the file is parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

// Save writes configuration to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv(provider.EnvAnthropicKey); key != "" {
		c.AnthropicAPIKey = key
	}
	if key := os.Getenv(provider.EnvOpenAIKey); key != "" {
		c.OpenAIAPIKey = key
	}
	if key := os.Getenv(provider.EnvGeminiKey); key != "" {
		c.GeminiAPIKey = key
	}
	if path := os.Getenv("MNEMO_DB"); path != "" {
		c.DBPath = path
	}
	if model := os.Getenv("MNEMO_MODEL"); model != "" {
		c.Model = model
	}
}

// applyDefaults fills zero values. configDir anchors relative defaults.
func (c *Config) applyDefaults(configDir string) {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(configDir, "mnemo.db")
	}
	if c.VersionQuietSeconds <= 0 {
		c.VersionQuietSeconds = 2
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// VersionQuietPeriod returns the recorder quiet period as a duration.
func (c *Config) VersionQuietPeriod() time.Duration {
	return time.Duration(c.VersionQuietSeconds) * time.Second
}

// ActiveProvider returns the provider and API key to use.
// Priority: explicit provider setting, then first available key.
func (c *Config) ActiveProvider() (provider.Provider, string, error) {
	if c.Provider != "" {
		switch provider.Provider(c.Provider) {
		case provider.ProviderAnthropic:
			if c.AnthropicAPIKey != "" {
				return provider.ProviderAnthropic, c.AnthropicAPIKey, nil
			}
		case provider.ProviderOpenAI:
			if c.OpenAIAPIKey != "" {
				return provider.ProviderOpenAI, c.OpenAIAPIKey, nil
			}
		case provider.ProviderGemini:
			if c.GeminiAPIKey != "" {
				return provider.ProviderGemini, c.GeminiAPIKey, nil
			}
		default:
			return "", "", fmt.Errorf("unknown provider %q (use anthropic, openai, or gemini)", c.Provider)
		}
		return "", "", fmt.Errorf("provider %q selected but no API key configured", c.Provider)
	}

	if c.AnthropicAPIKey != "" {
		return provider.ProviderAnthropic, c.AnthropicAPIKey, nil
	}
	if c.OpenAIAPIKey != "" {
		return provider.ProviderOpenAI, c.OpenAIAPIKey, nil
	}
	if c.GeminiAPIKey != "" {
		return provider.ProviderGemini, c.GeminiAPIKey, nil
	}
	return "", "", provider.ErrNoAPIKey
}

// EmbeddingConfig returns the embedding settings with defaults applied.
// The GenAI key falls back to the Gemini provider key when unset.
func (c *Config) EmbeddingConfig() embedding.Config {
	cfg := embedding.DefaultConfig()
	if c.Embedding != nil {
		if c.Embedding.Provider != "" {
			cfg.Provider = c.Embedding.Provider
		}
		if c.Embedding.OllamaEndpoint != "" {
			cfg.OllamaEndpoint = c.Embedding.OllamaEndpoint
		}
		if c.Embedding.OllamaModel != "" {
			cfg.OllamaModel = c.Embedding.OllamaModel
		}
		if c.Embedding.GenAIAPIKey != "" {
			cfg.GenAIAPIKey = c.Embedding.GenAIAPIKey
		}
		if c.Embedding.GenAIModel != "" {
			cfg.GenAIModel = c.Embedding.GenAIModel
		}
	}
	if cfg.GenAIAPIKey == "" {
		cfg.GenAIAPIKey = c.GeminiAPIKey
	}
	return cfg
}
