package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
Chat history is append-only. Seq is the per-session logical clock: it is
assigned by the store inside the append transaction, so listing by
(session_id, seq) returns exactly the order the chat router persisted and
broadcast.
*/

type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeAI   MessageType = "ai"
)

// AIUserID is the author id recorded on assistant replies.
const AIUserID = "ai_assistant"

// ChatMessage is one line of session chat. Never mutated after creation.
type ChatMessage struct {
	ID           string      `gorm:"type:varchar(27);primaryKey" json:"id"`
	SessionID    string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_seq,priority:1" json:"session_id"`
	Seq          int64       `gorm:"not null;uniqueIndex:idx_session_seq,priority:2" json:"seq"`
	UserID       string      `gorm:"type:varchar(64);not null" json:"user_id"`
	DisplayName  string      `gorm:"type:text" json:"display_name"`
	Body         string      `gorm:"type:text;not null" json:"message"`
	Type         MessageType `gorm:"type:varchar(8);not null" json:"message_type"`
	IsAIDirected bool        `gorm:"not null;default:false" json:"is_ai_directed"`

	// ReplyToMessageID points back at an earlier message; it does not own it.
	ReplyToMessageID *string   `gorm:"type:varchar(27)" json:"reply_to_message_id,omitempty"`
	ReplyPreview     string    `gorm:"type:text" json:"reply_to_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BeforeCreate generates KSUID
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = ksuid.New().String()
	}
	return nil
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
