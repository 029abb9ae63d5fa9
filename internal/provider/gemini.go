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

// GeminiConfig holds connection settings for the Gemini API.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.5-flash",
		Timeout: 10 * time.Minute,
	}
}

// GeminiClient implements Client for the Gemini generateContent API.
// Web-search turns run with Google Search grounding; source URIs come
// back as citations.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGeminiClient creates a client with default settings.
func NewGeminiClient(apiKey string, logger *zap.Logger) *GeminiClient {
	return NewGeminiClientWithConfig(DefaultGeminiConfig(apiKey), logger)
}

// NewGeminiClientWithConfig creates a client with custom settings.
func NewGeminiClientWithConfig(config GeminiConfig, logger *zap.Logger) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type geminiPart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall,omitempty"`
	FunctionResponse *struct {
		Name     string         `json:"name"`
		Response map[string]any `json:"response"`
	} `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *struct{}                   `json:"googleSearch,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	Temperature     float64               `json:"temperature"`
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		FinishReason      string        `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web,omitempty"`
			} `json:"groundingChunks"`
			WebSearchQueries []string `json:"webSearchQueries"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.SendTurn(ctx, nil, userPrompt, types.TurnOptions{System: systemPrompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// buildContents converts normalized history to the Gemini wire shape.
// Tool calls become functionCall parts on model turns; tool results
// become functionResponse parts on user turns, matched by call id
// (Gemini matches on function name, so the call id doubles as a
// response key in the output payload).
func buildGeminiContents(history []types.Message, message string, callNames map[string]string) []geminiContent {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case types.RoleAssistant:
			var parts []geminiPart
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				fc := &struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				}{Name: tc.Name, Args: tc.Input}
				if fc.Args == nil {
					fc.Args = map[string]any{}
				}
				parts = append(parts, geminiPart{FunctionCall: fc})
			}
			contents = append(contents, geminiContent{Role: "model", Parts: parts})
		case types.RoleTool:
			var parts []geminiPart
			for _, tr := range m.ToolResults {
				name := callNames[tr.ToolUseID]
				fr := &struct {
					Name     string         `json:"name"`
					Response map[string]any `json:"response"`
				}{
					Name: name,
					Response: map[string]any{
						"result":   tr.Content,
						"is_error": tr.IsError,
					},
				}
				parts = append(parts, geminiPart{FunctionResponse: fr})
			}
			contents = append(contents, geminiContent{Role: "user", Parts: parts})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if message != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})
	}
	return contents
}

func (c *GeminiClient) buildRequest(history []types.Message, message string, opts types.TurnOptions) geminiRequest {
	req := geminiRequest{
		Contents: buildGeminiContents(history, message, map[string]string{}),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 8192,
		},
	}
	if opts.System != "" {
		req.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: opts.System}},
		}
	}
	if opts.WebSearch {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	} else if len(opts.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(opts.Tools))
		for i, t := range opts.Tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	if opts.ThinkingBudget > 0 {
		req.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{
			ThinkingBudget: opts.ThinkingBudget,
		}
	}
	return req
}

// SendTurn sends the history plus a new message and returns the whole
// response.
func (c *GeminiClient) SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error) {
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
	model := opts.Model
	if model == "" {
		model = c.model
	}
	reqBody := c.buildRequest(history, message, opts)
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

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

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

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

		var apiResp geminiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
		}
		if len(apiResp.Candidates) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		result := c.parseResponse(&apiResp)
		c.logger.Debug("turn completed",
			zap.String("provider", "gemini"),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("text_len", len(result.Text)),
			zap.Int("tool_calls", len(result.ToolCalls)),
			zap.Int("citations", len(result.Citations)),
			zap.Int("thinking_tokens", result.Usage.ThinkingTokens))
		return result, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *GeminiClient) parseResponse(apiResp *geminiResponse) *types.TurnResponse {
	candidate := apiResp.Candidates[0]
	result := &types.TurnResponse{
		StopReason: candidate.FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:    apiResp.UsageMetadata.PromptTokenCount,
			OutputTokens:   apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:    apiResp.UsageMetadata.TotalTokenCount,
			ThinkingTokens: apiResp.UsageMetadata.ThoughtsTokenCount,
		},
	}

	var textBuilder strings.Builder
	callIdx := 0
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			textBuilder.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			callIdx++
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				// Gemini assigns no call ids; mint stable per-response ones.
				ID:    fmt.Sprintf("call-%d", callIdx),
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}
	result.Text = strings.TrimSpace(textBuilder.String())

	if candidate.GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" && !seen[chunk.Web.URI] {
				seen[chunk.Web.URI] = true
				result.Citations = append(result.Citations, chunk.Web.URI)
			}
		}
	}
	return result
}

// StreamTurn sends the history plus a new message via the SSE endpoint
// and returns incremental text deltas.
func (c *GeminiClient) StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error) {
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

		model := opts.Model
		if model == "" {
			model = c.model
		}
		reqBody := c.buildRequest(history, message, opts)
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, model, c.apiKey)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

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

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errorChan <- fmt.Errorf("API error: %s", chunk.Error.Message)
				return
			}
			for _, cand := range chunk.Candidates {
				for _, part := range cand.Content.Parts {
					if part.Text == "" {
						continue
					}
					select {
					case contentChan <- part.Text:
					case <-ctx.Done():
						errorChan <- ctx.Err()
						return
					}
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
func (c *GeminiClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}
