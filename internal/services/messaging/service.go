// File: internal/services/messaging/service.go
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/repository/message"
)

// Publisher receives every committed change.
type Publisher interface {
	Publish(ctx context.Context, event domain.ChangeEvent) int
}

// Service owns message writes and announces each one on the change feed.
type Service struct {
	repo      message.MessageRepository
	publisher Publisher
	renderer  *Renderer
	logger    logger.Logger
}

func NewService(repo message.MessageRepository, publisher Publisher, renderer *Renderer, log logger.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, renderer: renderer, logger: log}
}

// List returns the conversation in ascending creation order with sender profiles joined.
func (s *Service) List(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if err := domain.ValidateConversationID(conversationID); err != nil {
		return nil, NewValidationError("list", err.Error())
	}
	msgs, err := s.repo.FindByConversation(ctx, conversationID)
	if err != nil {
		return nil, NewInternalError("list", err)
	}
	return msgs, nil
}

// ListPage is List with limit/offset; total counts the whole conversation.
func (s *Service) ListPage(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, int64, error) {
	if err := domain.ValidateConversationID(conversationID); err != nil {
		return nil, 0, NewValidationError("list", err.Error())
	}
	msgs, total, err := s.repo.FindByConversationWithPagination(ctx, conversationID, limit, offset)
	if err != nil {
		if errors.Is(err, message.ErrInvalidPage) {
			return nil, 0, NewValidationError("list", err.Error())
		}
		return nil, 0, NewInternalError("list", err)
	}
	return msgs, total, nil
}

// Conversations lists inbox rows, most recently active first.
func (s *Service) Conversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error) {
	summaries, err := s.repo.ListConversations(ctx, limit)
	if err != nil {
		return nil, NewInternalError("conversations", err)
	}
	return summaries, nil
}

// Send stores a new message authored by senderID.
func (s *Service) Send(ctx context.Context, senderID, conversationID, body string) (*domain.Message, error) {
	if err := domain.ValidateConversationID(conversationID); err != nil {
		return nil, NewValidationError("send", err.Error())
	}
	clean, err := domain.ValidateBody(body)
	if err != nil {
		return nil, NewValidationError("send", err.Error())
	}

	created, err := s.repo.Create(ctx, &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           clean,
	})
	if err != nil {
		if errors.Is(err, message.ErrSenderProfileMissing) {
			return nil, NewOwnershipError(senderID, err)
		}
		return nil, NewInternalError("send", err)
	}

	s.publish(ctx, domain.ChangeInsert, created, nil)
	s.logger.Info("message sent", "message_id", created.ID, "conversation_id", conversationID, "sender_id", senderID)
	return created, nil
}

// Edit replaces the body of a message. Only its author may edit it.
func (s *Service) Edit(ctx context.Context, senderID, messageID, body string) (*domain.Message, error) {
	clean, err := domain.ValidateBody(body)
	if err != nil {
		return nil, NewValidationError("edit", err.Error())
	}
	before, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, s.mapRepoError("edit", err)
	}
	updated, err := s.repo.UpdateBody(ctx, messageID, senderID, clean)
	if err != nil {
		return nil, s.mapRepoError("edit", err)
	}

	s.publish(ctx, domain.ChangeUpdate, updated, before)
	return updated, nil
}

// Delete removes a message. Only its author may delete it.
func (s *Service) Delete(ctx context.Context, senderID, messageID string) error {
	removed, err := s.repo.Delete(ctx, messageID, senderID)
	if err != nil {
		return s.mapRepoError("delete", err)
	}
	s.publish(ctx, domain.ChangeDelete, nil, removed)
	return nil
}

// RenderBody converts a markdown body to HTML for clients that want it.
func (s *Service) RenderBody(body string) string {
	if s.renderer == nil {
		return ""
	}
	return s.renderer.Render(body)
}

func (s *Service) publish(ctx context.Context, kind domain.ChangeType, record, old *domain.Message) {
	if s.publisher == nil {
		return
	}
	event := domain.ChangeEvent{
		Type:       kind,
		Table:      "messages",
		Record:     stripSender(record),
		OldRecord:  stripSender(old),
		CommitTime: time.Now().UnixMilli(),
	}
	if record != nil {
		event.ConversationID = record.ConversationID
	} else if old != nil {
		event.ConversationID = old.ConversationID
	}
	delivered := s.publisher.Publish(ctx, event)
	s.logger.Debug("change published", "type", kind, "conversation_id", event.ConversationID, "delivered", delivered)
}

func (s *Service) mapRepoError(operation string, err error) error {
	switch {
	case errors.Is(err, message.ErrMessageNotFound):
		return NewNotFoundError(operation, "message not found")
	case errors.Is(err, message.ErrNotMessageAuthor):
		return NewForbiddenError(operation)
	default:
		return NewInternalError(operation, err)
	}
}

// stripSender keeps change payloads row-shaped; subscribers resolve profiles themselves.
func stripSender(m *domain.Message) *domain.Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Sender = nil
	return &cp
}
