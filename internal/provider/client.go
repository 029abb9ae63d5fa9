// Package provider contains the LLM provider adapters. Each adapter
// speaks one vendor's HTTP API and normalizes it to the Client
// interface: whole-turn completions with optional tool calls, streamed
// text, and web citations. Adapters own their own timeouts and retry
// behavior; callers see either a response or a terminal error.
package provider

import (
	"context"
	"errors"

	"mnemo/internal/types"
)

// Provider identifies an LLM vendor.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

var (
	// ErrNoAPIKey indicates no credential was configured for the provider.
	ErrNoAPIKey = errors.New("API key not configured")

	// ErrToolsWithWebSearch indicates a turn requested both local tools
	// and web search. The two modes are mutually exclusive.
	ErrToolsWithWebSearch = errors.New("tools and web search are mutually exclusive")

	// ErrWebSearchUnsupported indicates the provider has no web search mode.
	ErrWebSearchUnsupported = errors.New("web search not supported by this provider")
)

// Client is the adapter interface every provider implements.
type Client interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// SendTurn sends the conversation history plus a new user message
	// and returns the whole response: text, tool-call requests, and
	// citations when the turn ran in web-search mode.
	SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error)

	// StreamTurn sends the history plus a new user message and streams
	// text deltas. The content channel closes when the stream ends; a
	// terminal failure arrives on the error channel. Tool calls are not
	// surfaced on this path.
	StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error)

	// SetModel changes the model used for completions.
	SetModel(model string)

	// GetModel returns the current model.
	GetModel() string
}

// validateTurnOptions enforces the option invariants shared by all
// providers.
func validateTurnOptions(opts types.TurnOptions) error {
	if opts.WebSearch && len(opts.Tools) > 0 {
		return ErrToolsWithWebSearch
	}
	return nil
}
