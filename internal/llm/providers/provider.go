package providers

import "context"

// Message is a single conversation turn. Assistant turns may carry tool
// calls; tool turns carry the id of the call they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a callable tool to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

/// ChatResult is the model's reply to a tool-enabled completion: either
// assistant text, tool calls, or both.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatTools(ctx context.Context, messages []Message, tools []ToolSpec) (*ChatResult, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}
