package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mnemo/internal/types"
)

// OpenAIConfig holds connection settings for the OpenAI API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 10 * time.Minute,
	}
}

// OpenAIClient implements Client for the OpenAI chat completions API.
// OpenAI has no server-side web search mode here, so web-search turns
// are rejected with ErrWebSearchUnsupported.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAIClient creates a client with default settings.
func NewOpenAIClient(apiKey string, logger *zap.Logger) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey), logger)
}

// NewOpenAIClientWithConfig creates a client with custom settings.
func NewOpenAIClientWithConfig(config OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.SendTurn(ctx, nil, userPrompt, types.TurnOptions{System: systemPrompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// buildMessages converts normalized history to the OpenAI wire shape.
// Each tool result becomes its own role=tool message keyed by call id.
func buildOpenAIMessages(system string, history []types.Message, message string) []openAIMessage {
	msgs := make([]openAIMessage, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case types.RoleAssistant:
			om := openAIMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					args = []byte("{}")
				}
				otc := openAIToolCall{ID: tc.ID, Type: "function"}
				otc.Function.Name = tc.Name
				otc.Function.Arguments = string(args)
				om.ToolCalls = append(om.ToolCalls, otc)
			}
			msgs = append(msgs, om)
		case types.RoleTool:
			for _, tr := range m.ToolResults {
				msgs = append(msgs, openAIMessage{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolUseID,
				})
			}
		default:
			msgs = append(msgs, openAIMessage{Role: "user", Content: m.Content})
		}
	}
	if message != "" {
		msgs = append(msgs, openAIMessage{Role: "user", Content: message})
	}
	return msgs
}

func (c *OpenAIClient) buildRequest(history []types.Message, message string, opts types.TurnOptions, stream bool) openAIRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	req := openAIRequest{
		Model:       model,
		Messages:    buildOpenAIMessages(opts.System, history, message),
		Temperature: 0.1,
		Stream:      stream,
	}
	for _, t := range opts.Tools {
		var ot openAITool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		req.Tools = append(req.Tools, ot)
	}
	return req
}

// SendTurn sends the history plus a new message and returns the whole
// response.
func (c *OpenAIClient) SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if err := validateTurnOptions(opts); err != nil {
		return nil, err
	}
	if opts.WebSearch {
		return nil, ErrWebSearchUnsupported
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	reqBody := c.buildRequest(history, message, opts, false)
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	maxRetries := 3
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var apiResp openAIResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
		}
		if len(apiResp.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		choice := apiResp.Choices[0]
		result := &types.TurnResponse{
			Text:       strings.TrimSpace(choice.Message.Content),
			StopReason: choice.FinishReason,
		}
		for _, tc := range choice.Message.ToolCalls {
			input := map[string]any{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					c.logger.Warn("failed to parse tool arguments",
						zap.String("tool", tc.Function.Name), zap.Error(err))
				}
			}
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
		if apiResp.Usage != nil {
			result.Usage = types.UsageMetadata{
				InputTokens:  apiResp.Usage.PromptTokens,
				OutputTokens: apiResp.Usage.CompletionTokens,
				TotalTokens:  apiResp.Usage.TotalTokens,
			}
		}

		c.logger.Debug("turn completed",
			zap.String("provider", "openai"),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("text_len", len(result.Text)),
			zap.Int("tool_calls", len(result.ToolCalls)))
		return result, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// StreamTurn sends the history plus a new message with streaming
// enabled and returns incremental text deltas.
func (c *OpenAIClient) StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if c.apiKey == "" {
			errorChan <- ErrNoAPIKey
			return
		}
		if err := validateTurnOptions(opts); err != nil {
			errorChan <- err
			return
		}
		if opts.WebSearch {
			errorChan <- ErrWebSearchUnsupported
			return
		}
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		reqBody := c.buildRequest(history, message, opts, true)
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorChan <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case contentChan <- chunk.Choices[0].Delta.Content:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- fmt.Errorf("stream error: %w", err)
		}
	}()

	return contentChan, errorChan
}

// SetModel changes the model used for completions.
func (c *OpenAIClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	return c.model
}
