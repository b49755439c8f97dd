package models

// Think actions. Only final answers are safe to cache: replaying a tool
// call from cache would skip the real device effect.
const (
	ActionFinalAnswer = "final_answer"
	ActionToolCall    = "tool_call"
	ActionError       = "error"
)

// ThinkResult is a single model decision: either a final answer for the
// user or a request to run a device tool.
type ThinkResult struct {
	Action   string         `json:"action"`
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Content  string         `json:"content,omitempty"`
	Usage    *Usage         `json:"usage,omitempty"`
}

// Usage holds token counts reported by a provider for one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IsToolCall reports whether the result asks for a tool invocation.
func (r ThinkResult) IsToolCall() bool {
	return r.Action == ActionToolCall && r.ToolName != ""
}

// Cacheable reports whether the result may be persisted.
func (r ThinkResult) Cacheable() bool {
	return r.Action == ActionFinalAnswer
}

// ChatMessage represents a single turn in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolResult is the outcome of executing a device tool locally.
type ToolResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Output  string         `json:"output,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
