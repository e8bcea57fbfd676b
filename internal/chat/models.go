package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Chat struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"` // ULID
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Title     *string   `gorm:"type:varchar(255)" json:"title"`
	Pinned    bool      `gorm:"not null;default:false" json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Chat) TableName() string { return "chats" }

// Message content is nil while a streaming response is in flight; the row
// exists as soon as generation starts and is finalized after the stream ends.
type Message struct {
	ID           uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID       string   `gorm:"size:26;not null;index:idx_msg_chat_seq,priority:1" json:"chat_id"`
	Role         string   `gorm:"type:varchar(16);not null" json:"role"`
	Content      *string  `gorm:"type:text" json:"content"`
	Attachments  []string `gorm:"serializer:json;type:text" json:"attachments,omitempty"`
	ModelID      *string  `gorm:"type:varchar(64)" json:"model_id,omitempty"`
	ImageModelID *string  `gorm:"type:varchar(64)" json:"image_model_id,omitempty"`

	// SeqNum is the total order within a chat; always computed server-side.
	SeqNum int `gorm:"not null;index:idx_msg_chat_seq,priority:2" json:"seq_num"`

	// Selected marks the active sibling within a generation batch. nil is
	// treated as selected for user messages and legacy rows.
	Selected *bool `json:"selected"`

	// PreviousMessageID points an assistant message back at the user message
	// it replies to. Graph pointer only, not an ownership link.
	PreviousMessageID *uint64 `gorm:"index" json:"previous_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// SharedConversation is a public read-only snapshot reference, 1:1 per chat.
type SharedConversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID
	ChatID    string    `gorm:"size:26;uniqueIndex;not null" json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (SharedConversation) TableName() string { return "shared_conversations" }
