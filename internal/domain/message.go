// File: internal/domain/message.go
package domain

import (
	"errors"
	"strings"
	"time"
)

// MaxBodyLength bounds a single message body.
const MaxBodyLength = 10000

// Message is a single chat message within a conversation.
type Message struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string     `json:"conversation_id" gorm:"not null;index:idx_messages_conversation_created,priority:1;size:64"`
	SenderID       string     `json:"sender_id" gorm:"not null;index;size:36"`
	Body           string     `json:"body" gorm:"not null"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index:idx_messages_conversation_created,priority:2"`
	UpdatedAt      time.Time  `json:"updated_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Sender         *Profile   `json:"sender,omitempty" gorm:"foreignKey:SenderID;references:ID;constraint:OnDelete:RESTRICT"`
}

// ValidateBody trims and checks a message body.
func ValidateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", errors.New("message body cannot be empty")
	}
	if len(trimmed) > MaxBodyLength {
		return "", errors.New("message body exceeds maximum length")
	}
	return trimmed, nil
}

// ValidateConversationID checks that a conversation key is usable as a topic suffix.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation id is required")
	}
	if len(id) > 64 {
		return errors.New("conversation id is too long")
	}
	if strings.ContainsAny(id, ":* \t\n") {
		return errors.New("conversation id contains invalid characters")
	}
	return nil
}

// ConversationSummary is one inbox row: a conversation with its size and most recent message.
type ConversationSummary struct {
	ConversationID string   `json:"conversation_id"`
	MessageCount   int64    `json:"message_count"`
	LastMessage    *Message `json:"last_message,omitempty"`
}
