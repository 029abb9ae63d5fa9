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
	"sync"
	"time"

	"go.uber.org/zap"

	"mnemo/internal/types"
)

// AnthropicConfig holds connection settings for the Anthropic API.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-sonnet-4-5",
		Timeout: 10 * time.Minute,
	}
}

// AnthropicClient implements Client for the direct Anthropic API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewAnthropicClient creates a client with default settings.
func NewAnthropicClient(apiKey string, logger *zap.Logger) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey), logger)
}

// NewAnthropicClientWithConfig creates a client with custom settings.
func NewAnthropicClientWithConfig(config AnthropicConfig, logger *zap.Logger) *AnthropicClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Type        string         `json:"type,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	MaxUses     int            `json:"max_uses,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// Web search result blocks carry nested content with source URLs.
	Content json.RawMessage `json:"content,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.SendTurn(ctx, nil, userPrompt, types.TurnOptions{System: systemPrompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// throttle enforces a minimum gap between requests.
func (c *AnthropicClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// buildMessages converts normalized history to the Anthropic wire
// shape. Assistant tool calls become tool_use blocks; tool results
// become a user message of tool_result blocks, paired by call id.
func buildAnthropicMessages(history []types.Message, message string) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case types.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, anthropicMessage{Role: "assistant", Content: m.Content})
				continue
			}
			blocks := make([]map[string]any, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			msgs = append(msgs, anthropicMessage{Role: "assistant", Content: blocks})
		case types.RoleTool:
			blocks := make([]map[string]any, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				blocks = append(blocks, map[string]any{
					"type":        "tool_result",
					"tool_use_id": tr.ToolUseID,
					"content":     tr.Content,
					"is_error":    tr.IsError,
				})
			}
			msgs = append(msgs, anthropicMessage{Role: "user", Content: blocks})
		default:
			msgs = append(msgs, anthropicMessage{Role: "user", Content: m.Content})
		}
	}
	if message != "" {
		msgs = append(msgs, anthropicMessage{Role: "user", Content: message})
	}
	return msgs
}

func (c *AnthropicClient) buildRequest(history []types.Message, message string, opts types.TurnOptions, stream bool) anthropicRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   8192,
		System:      opts.System,
		Messages:    buildAnthropicMessages(history, message),
		Temperature: 0.1,
		Stream:      stream,
	}
	if opts.WebSearch {
		req.Tools = []anthropicTool{{
			Type:    "web_search_20250305",
			Name:    "web_search",
			MaxUses: 5,
		}}
	} else {
		for _, t := range opts.Tools {
			req.Tools = append(req.Tools, anthropicTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	if opts.ThinkingBudget > 0 {
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: opts.ThinkingBudget}
		// Thinking requires the default temperature.
		req.Temperature = 1.0
	}
	return req
}

// SendTurn sends the history plus a new message and returns the whole
// response. Transient failures (429, network) are retried with
// exponential backoff.
func (c *AnthropicClient) SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if err := validateTurnOptions(opts); err != nil {
		return nil, err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	c.throttle()

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

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)

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

		var apiResp anthropicResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
		}

		result := parseAnthropicResponse(&apiResp)
		c.logger.Debug("turn completed",
			zap.String("provider", "anthropic"),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("text_len", len(result.Text)),
			zap.Int("tool_calls", len(result.ToolCalls)),
			zap.String("stop_reason", result.StopReason))
		return result, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *AnthropicClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}

func parseAnthropicResponse(apiResp *anthropicResponse) *types.TurnResponse {
	result := &types.TurnResponse{StopReason: apiResp.StopReason}
	if apiResp.Usage != nil {
		result.Usage = types.UsageMetadata{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		}
	}

	seen := make(map[string]bool)
	var textBuilder strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			textBuilder.WriteString(block.Text)
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		case "web_search_tool_result":
			var results []struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(block.Content, &results); err != nil {
				continue
			}
			for _, r := range results {
				if r.URL != "" && !seen[r.URL] {
					seen[r.URL] = true
					result.Citations = append(result.Citations, r.URL)
				}
			}
		}
	}
	result.Text = strings.TrimSpace(textBuilder.String())
	return result
}

// StreamTurn sends the history plus a new message with streaming
// enabled and returns incremental text deltas.
func (c *AnthropicClient) StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error) {
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
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()
		reqBody := c.buildRequest(history, message, opts, true)
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		c.setHeaders(req)
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

		scanDone := make(chan struct{})
		scanErrChan := make(chan error, 1)

		go func() {
			defer close(scanDone)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "" || data == "[DONE]" {
					continue
				}

				var evt struct {
					Type  string `json:"type"`
					Delta *struct {
						Type string `json:"type"`
						Text string `json:"text,omitempty"`
					} `json:"delta,omitempty"`
					Error *struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error,omitempty"`
				}
				if err := json.Unmarshal([]byte(data), &evt); err != nil {
					continue
				}
				if evt.Error != nil {
					scanErrChan <- fmt.Errorf("API error: %s", evt.Error.Message)
					return
				}
				if evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Text != "" {
					select {
					case contentChan <- evt.Delta.Text:
					case <-ctx.Done():
						return
					}
				}
			}
			if err := scanner.Err(); err != nil {
				scanErrChan <- err
			}
		}()

		select {
		case <-scanDone:
			select {
			case err := <-scanErrChan:
				errorChan <- fmt.Errorf("stream error: %w", err)
			default:
				c.logger.Debug("stream completed",
					zap.String("provider", "anthropic"),
					zap.Duration("duration", time.Since(startTime)))
			}
		case <-ctx.Done():
			resp.Body.Close()
			<-scanDone
			errorChan <- ctx.Err()
		}
	}()

	return contentChan, errorChan
}

// SetModel changes the model used for completions.
func (c *AnthropicClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string {
	return c.model
}
