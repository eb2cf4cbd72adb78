// File: internal/repository/message/interface.go
package message

import (
	"context"

	"github.com/iyunix/go-designdesk/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) (*domain.Message, error)
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	FindByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
	FindByConversationWithPagination(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, int64, error)
	UpdateBody(ctx context.Context, messageID, senderID, body string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, senderID string) (*domain.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int64, error)
	ListConversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error)
}
