package types

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// ToolResult pairs a tool call's output with the call that produced it, so
// the provider follow-up pass can match results to requests.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"` // Matches ToolCall.ID
	Content   string `json:"content"`     // Result content
	IsError   bool   `json:"is_error"`    // Whether this is an error result
}

// Message roles on the conversation wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of conversation history. Assistant messages may carry
// the tool calls they requested; tool messages carry the paired results.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// TurnOptions are opaque per-call parameters passed through to the
// provider unmodified. WebSearch and Tools are mutually exclusive: a
// provider either searches the web or calls local tools in a given turn.
type TurnOptions struct {
	Model          string           `json:"model,omitempty"`
	System         string           `json:"system,omitempty"`
	ThinkingBudget int              `json:"thinking_budget,omitempty"` // tokens; 0 disables thinking
	WebSearch      bool             `json:"web_search,omitempty"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
}

// TurnResponse contains the provider's answer to one conversation pass:
// prose, any tool calls it wants executed, and web citations when the turn
// ran in web-search mode. Citations are returned alongside the text, never
// inlined, so callers can render them separately.
type TurnResponse struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	Citations  []string      `json:"citations,omitempty"` // grounding source URLs (web-search mode only)
	StopReason string        `json:"stop_reason"`
	Usage      UsageMetadata `json:"usage"`
}
