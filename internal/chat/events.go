package chat

import "github.com/multimind-ai/multimind/internal/ai"

type EventType string

const (
	EventChatMetadata       EventType = "chat_metadata"
	EventMessageStart       EventType = "message_start"
	EventReasoningContent   EventType = "reasoning_content"
	EventMessageContent     EventType = "message_content"
	EventToolCalls          EventType = "tool_calls"
	EventMessageContentStop EventType = "message_content_stop"
	EventError              EventType = "error"
	EventDone               EventType = "done"
)

// ServerEvent is one SSE frame. Internal-only fields (the accumulated full
// text behind a stop chunk) never appear here; the client rebuilds content
// from deltas and the final row is persisted server-side.
type ServerEvent struct {
	Type EventType `json:"type"`

	ChatID string `json:"chat_id,omitempty"`
	Title  string `json:"title,omitempty"`

	MessageID uint64 `json:"message_id,omitempty"`
	ModelID   string `json:"model_id,omitempty"`
	ModelName string `json:"model_name,omitempty"`
	ReplyTo   uint64 `json:"reply_to,omitempty"`

	Delta       string        `json:"delta,omitempty"`
	ToolCalls   []ai.ToolCall `json:"tool_calls,omitempty"`
	Attachments []string      `json:"attachments,omitempty"`

	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type chunkKind int

const (
	chunkReasoning chunkKind = iota
	chunkContent
	chunkToolCalls
	chunkStop
	chunkError
)

// streamChunk is the record producer goroutines push onto the shared queue.
// Exactly one terminal chunk (stop or error) is pushed per model.
type streamChunk struct {
	kind      chunkKind
	modelID   string
	messageID uint64

	delta     string
	toolCalls []ai.ToolCall

	// stop only; fullText stays server-side
	fullText    string
	attachments []string
	usage       ai.Usage

	// error only
	status int
	errMsg string
}
