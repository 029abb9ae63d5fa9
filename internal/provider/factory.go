package provider

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Environment variables consulted for credentials, in priority order.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// DetectProvider inspects the environment and returns the first
// provider with a configured credential, together with its key.
// Priority: Anthropic, then OpenAI, then Gemini.
func DetectProvider() (Provider, string, error) {
	if key := os.Getenv(EnvAnthropicKey); key != "" {
		return ProviderAnthropic, key, nil
	}
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		return ProviderOpenAI, key, nil
	}
	if key := os.Getenv(EnvGeminiKey); key != "" {
		return ProviderGemini, key, nil
	}
	return "", "", fmt.Errorf("%w: set %s, %s, or %s",
		ErrNoAPIKey, EnvAnthropicKey, EnvOpenAIKey, EnvGeminiKey)
}

// NewClient constructs a client for the named provider. An empty model
// keeps the provider's default.
func NewClient(p Provider, apiKey, model string, logger *zap.Logger) (Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var client Client
	switch p {
	case ProviderAnthropic:
		client = NewAnthropicClient(apiKey, logger)
	case ProviderOpenAI:
		client = NewOpenAIClient(apiKey, logger)
	case ProviderGemini:
		client = NewGeminiClient(apiKey, logger)
	default:
		return nil, fmt.Errorf("unknown provider: %q", p)
	}
	if model != "" {
		client.SetModel(model)
	}
	return client, nil
}

// NewClientFromEnv builds a client for the highest-priority provider
// with a credential in the environment.
func NewClientFromEnv(model string, logger *zap.Logger) (Client, error) {
	p, key, err := DetectProvider()
	if err != nil {
		return nil, err
	}
	return NewClient(p, key, model, logger)
}
