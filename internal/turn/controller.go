// Package turn orchestrates one conversation turn: send history to the
// provider, execute any requested tool calls through the dispatcher,
// feed the results back, and deliver final prose plus citations. The
// controller owns the conversation history across turns.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mnemo/internal/provider"
	"mnemo/internal/tools"
	"mnemo/internal/types"
)

// State tracks where a turn is in its lifecycle, for logging and UI
// affordances.
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingFirstResponse State = "awaiting_first_response"
	StateExecutingTools        State = "executing_tools"
	StateAwaitingFollowup      State = "awaiting_followup"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// maxToolRounds bounds tool-call loops; the model occasionally chains
// several rounds when later calls depend on earlier results.
const maxToolRounds = 8

// Handler receives progress callbacks during a turn. All fields are
// optional. Callbacks run on the turn's goroutine.
type Handler struct {
	// OnChunk receives incremental text. Turns that produce tool calls
	// stream their follow-up pass; plain turns deliver the whole text
	// as one chunk.
	OnChunk func(text string)

	// OnToolCall fires before a tool call is dispatched.
	OnToolCall func(call types.ToolCall)

	// OnToolResult fires after a tool call completes.
	OnToolResult func(result types.ToolResult)
}

// Result is the outcome of a completed turn.
type Result struct {
	Text      string
	Citations []string
	ToolCalls []types.ToolCall
	Usage     types.UsageMetadata
}

// Controller runs conversation turns against a provider and a tool
// dispatcher. Not safe for concurrent turns; one turn at a time.
type Controller struct {
	client     provider.Client
	dispatcher *tools.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	history []types.Message
}

// NewController creates a controller with empty history.
func NewController(client provider.Client, dispatcher *tools.Dispatcher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// History returns a copy of the conversation history.
func (c *Controller) History() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.history...)
}

// Reset clears the conversation history.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.history = nil
	c.state = StateIdle
	c.mu.Unlock()
}

func (c *Controller) appendHistory(msgs ...types.Message) {
	c.mu.Lock()
	c.history = append(c.history, msgs...)
	c.mu.Unlock()
}

// RunTurn executes one user turn. Tool-call requests from the provider
// are dispatched strictly sequentially, in request order, so a later
// call observes the effects of an earlier one. If ctx is canceled
// mid-turn, already-dispatched tool calls stand (their mutations are
// committed) and undispatched ones are dropped.
//
// Web search and local tools are mutually exclusive: a web-search turn
// carries no tool definitions and returns citations with its text.
func (c *Controller) RunTurn(ctx context.Context, userMessage string, opts types.TurnOptions, h Handler) (*Result, error) {
	if !opts.WebSearch {
		opts.Tools = c.dispatcher.Definitions()
	}

	c.setState(StateAwaitingFirstResponse)
	result := &Result{}
	pending := userMessage

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			c.setState(StateFailed)
			return nil, err
		}
		if round > maxToolRounds {
			c.setState(StateFailed)
			return nil, fmt.Errorf("tool call rounds exceeded %d", maxToolRounds)
		}

		resp, err := c.client.SendTurn(ctx, c.History(), pending, opts)
		if err != nil {
			// Terminal turn error. Mutations committed by earlier tool
			// rounds are not undone.
			c.setState(StateFailed)
			return nil, fmt.Errorf("provider error: %w", err)
		}
		if pending != "" {
			c.appendHistory(types.Message{Role: types.RoleUser, Content: pending})
			pending = ""
		}
		c.appendHistory(types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		result.Citations = append(result.Citations, resp.Citations...)
		result.Usage = addUsage(result.Usage, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Text
			if h.OnChunk != nil && resp.Text != "" {
				h.OnChunk(resp.Text)
			}
			c.setState(StateDone)
			return result, nil
		}

		results, err := c.executeToolCalls(ctx, resp.ToolCalls, h)
		result.ToolCalls = append(result.ToolCalls, resp.ToolCalls...)
		if len(results) > 0 {
			c.appendHistory(types.Message{Role: types.RoleTool, ToolResults: results})
		}
		if err != nil {
			c.setState(StateFailed)
			return nil, err
		}

		// With a chunk handler attached, the follow-up pass streams.
		// Tool definitions are withheld there: a stream carries text
		// only, so further tool requests would be lost.
		if h.OnChunk != nil {
			text, err := c.streamFollowup(ctx, opts, h)
			if err != nil {
				c.setState(StateFailed)
				return nil, err
			}
			result.Text = text
			c.appendHistory(types.Message{Role: types.RoleAssistant, Content: text})
			c.setState(StateDone)
			return result, nil
		}
		c.setState(StateAwaitingFollowup)
	}
}

// executeToolCalls dispatches calls in request order. A context
// cancellation between calls stops the remainder; the dispatched
// prefix's effects stand.
func (c *Controller) executeToolCalls(ctx context.Context, calls []types.ToolCall, h Handler) ([]types.ToolResult, error) {
	c.setState(StateExecutingTools)

	results := make([]types.ToolResult, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			c.logger.Info("turn aborted mid-tools",
				zap.Int("dispatched", len(results)),
				zap.Int("dropped", len(calls)-len(results)))
			return results, err
		}
		if h.OnToolCall != nil {
			h.OnToolCall(call)
		}
		res := c.dispatcher.Dispatch(ctx, call)
		if h.OnToolResult != nil {
			h.OnToolResult(res)
		}
		c.logger.Debug("tool call dispatched",
			zap.String("tool", call.Name),
			zap.Bool("error", res.IsError))
		results = append(results, res)
	}
	return results, nil
}

// streamFollowup runs the post-tools pass as a stream, forwarding
// chunks and returning the accumulated text. A mid-stream failure is a
// terminal turn error; chunks already forwarded are not retracted.
func (c *Controller) streamFollowup(ctx context.Context, opts types.TurnOptions, h Handler) (string, error) {
	c.setState(StateAwaitingFollowup)

	streamOpts := opts
	streamOpts.Tools = nil
	contentChan, errorChan := c.client.StreamTurn(ctx, c.History(), "", streamOpts)

	var b strings.Builder
	for chunk := range contentChan {
		b.WriteString(chunk)
		h.OnChunk(chunk)
	}
	if err := <-errorChan; err != nil {
		return "", fmt.Errorf("provider error: %w", err)
	}
	return b.String(), nil
}

func addUsage(a, b types.UsageMetadata) types.UsageMetadata {
	return types.UsageMetadata{
		InputTokens:    a.InputTokens + b.InputTokens,
		OutputTokens:   a.OutputTokens + b.OutputTokens,
		TotalTokens:    a.TotalTokens + b.TotalTokens,
		ThinkingTokens: a.ThinkingTokens + b.ThinkingTokens,
	}
}
