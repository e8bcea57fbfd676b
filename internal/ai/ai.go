package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function ToolFunction `json:"function"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type Tool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type Options struct {
	Tools []Tool
}

// StreamDelta is one increment of a streamed generation. The stream is
// finite and not restartable; the final delta usually carries Usage.
type StreamDelta struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     *Usage
}

type Provider interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, Usage, error)
	GenerateStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamDelta, <-chan error)
	CountTokens(messages []Message) int
}
