package domain

// Chat roles used across the handler, the assistant and the provider
// integration.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// assistant and LLM integrations. Tool fields are only populated on the
// tool-call round trip and stay empty for plain text turns.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a provider-initiated request to invoke a locally defined
// function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// AudioClip is a synthesized speech payload returned to the frontend.
type AudioClip struct {
	Base64  string `json:"data"`
	Format  string `json:"format"`
	DataURL string `json:"data_url"`
}
