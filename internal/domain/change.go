// File: internal/domain/change.go
package domain

import "strings"

// ChangeType is the kind of row-level change carried by the feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

const (
	messagesTopicPrefix = "messages:"
	// AllMessagesTopic receives every message change regardless of conversation.
	AllMessagesTopic = "messages:*"
)

// ChangeEvent describes one row change on the messages table.
type ChangeEvent struct {
	Type           ChangeType `json:"type"`
	Table          string     `json:"table"`
	ConversationID string     `json:"conversation_id"`
	Record         *Message   `json:"record,omitempty"`
	OldRecord      *Message   `json:"old_record,omitempty"`
	CommitTime     int64      `json:"commit_timestamp"`
}

// ConversationTopic is the feed topic for one conversation.
func ConversationTopic(conversationID string) string {
	return messagesTopicPrefix + conversationID
}

// TopicConversation extracts the conversation id from a topic. The list topic
// and foreign topics return false.
func TopicConversation(topic string) (string, bool) {
	if topic == AllMessagesTopic || !strings.HasPrefix(topic, messagesTopicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, messagesTopicPrefix)
	return id, id != ""
}

// ValidTopic reports whether the topic is one the feed serves.
func ValidTopic(topic string) bool {
	if topic == AllMessagesTopic {
		return true
	}
	id, ok := TopicConversation(topic)
	return ok && ValidateConversationID(id) == nil
}

// Topics lists every topic an event must be delivered to.
func (e ChangeEvent) Topics() []string {
	return []string{ConversationTopic(e.ConversationID), AllMessagesTopic}
}
