// File: internal/repository/message/message_repository.go
package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMessageAuthor     = errors.New("message belongs to another sender")
	ErrSenderProfileMissing = errors.New("sender profile does not exist")
	ErrInvalidPage          = errors.New("invalid page")
)

const maxPageSize = 1000

type gormMessageRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

func NewMessageRepository(db *gorm.DB, log logger.Logger) MessageRepository {
	return &gormMessageRepository{db: db, logger: log}
}

// Create inserts a message. The sender must already have a profile row; the
// check runs in the same transaction as the insert.
func (r *gormMessageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	if err := r.validateMessageInput(message); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.Sender = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Profile{}).Where("id = ?", message.SenderID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrSenderProfileMissing
		}
		return tx.Create(message).Error
	})
	if err != nil {
		if errors.Is(err, ErrSenderProfileMissing) || errors.Is(err, gorm.ErrForeignKeyViolated) {
			r.logger.Warn("message insert rejected: no sender profile", "sender_id", message.SenderID, "conversation_id", message.ConversationID)
			return nil, ErrSenderProfileMissing
		}
		r.logger.Error("database error during message creation", "conversation_id", message.ConversationID, "error", err)
		return nil, errors.New("database error creating message")
	}

	r.logger.Debug("message created", "message_id", message.ID, "conversation_id", message.ConversationID)
	return r.FindByID(ctx, message.ID)
}

func (r *gormMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, errors.New("invalid message ID")
	}
	var message domain.Message
	err := r.db.WithContext(ctx).Preload("Sender").First(&message, "id = ?", messageID).Error
	return r.handleFindError(err, &message, "FindByID")
}

// FindByConversation returns every message of a conversation in ascending creation order.
func (r *gormMessageRepository) FindByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, errors.New("invalid conversation ID")
	}

	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		r.logger.Error("database error finding messages", "conversation_id", conversationID, "error", err)
		return nil, errors.New("database error fetching messages")
	}
	return messages, nil
}

func (r *gormMessageRepository) FindByConversationWithPagination(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, int64, error) {
	if conversationID == "" {
		return nil, 0, fmt.Errorf("%w: conversation ID is required", ErrInvalidPage)
	}
	if limit <= 0 || limit > maxPageSize {
		return nil, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPage, maxPageSize)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset must be >= 0", ErrInvalidPage)
	}

	total, err := r.CountByConversation(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	var messages []domain.Message
	err = r.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Order("id asc").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		r.logger.Error("database error in paginated query", "conversation_id", conversationID, "error", err)
		return nil, 0, errors.New("database error retrieving paginated messages")
	}
	return messages, total, nil
}

// UpdateBody edits a message body. Only the author may edit.
func (r *gormMessageRepository) UpdateBody(ctx context.Context, messageID, senderID, body string) (*domain.Message, error) {
	if messageID == "" {
		return nil, errors.New("invalid message ID")
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Updates(map[string]interface{}{"body": body, "edited_at": now, "updated_at": now})
	if result.Error != nil {
		r.logger.Error("database error updating message", "message_id", messageID, "error", result.Error)
		return nil, errors.New("database error updating message")
	}
	if result.RowsAffected == 0 {
		return nil, r.missingOrForeign(ctx, messageID)
	}
	return r.FindByID(ctx, messageID)
}

// Delete removes a message owned by senderID and returns the removed row.
func (r *gormMessageRepository) Delete(ctx context.Context, messageID, senderID string) (*domain.Message, error) {
	existing, err := r.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if existing.SenderID != senderID {
		return nil, ErrNotMessageAuthor
	}

	result := r.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Delete(&domain.Message{})
	if result.Error != nil {
		r.logger.Error("database error deleting message", "message_id", messageID, "error", result.Error)
		return nil, errors.New("database error deleting message")
	}
	if result.RowsAffected == 0 {
		return nil, ErrMessageNotFound
	}
	return existing, nil
}

func (r *gormMessageRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error
	if err != nil {
		r.logger.Error("database error counting messages", "conversation_id", conversationID, "error", err)
		return 0, errors.New("database error counting messages")
	}
	return count, nil
}

// ListConversations summarises conversations, most recently active first.
// It issues a fixed number of queries regardless of how many conversations exist.
func (r *gormMessageRepository) ListConversations(ctx context.Context, limit int) ([]domain.ConversationSummary, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	var counts []struct {
		ConversationID string
		MessageCount   int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("conversation_id, count(*) as message_count").
		Group("conversation_id").
		Order("max(created_at) desc").
		Order("conversation_id asc").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		r.logger.Error("database error listing conversations", "error", err)
		return nil, errors.New("database error listing conversations")
	}
	if len(counts) == 0 {
		return []domain.ConversationSummary{}, nil
	}

	ids := make([]string, len(counts))
	for i, c := range counts {
		ids[i] = c.ConversationID
	}

	// newest row per conversation; id breaks created_at ties
	var latest []domain.Message
	err = r.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id IN ?", ids).
		Where(`NOT EXISTS (SELECT 1 FROM messages AS newer
			WHERE newer.conversation_id = messages.conversation_id
			AND (newer.created_at > messages.created_at
				OR (newer.created_at = messages.created_at AND newer.id > messages.id)))`).
		Find(&latest).Error
	if err != nil {
		r.logger.Error("database error loading last messages", "error", err)
		return nil, errors.New("database error listing conversations")
	}

	byConversation := make(map[string]*domain.Message, len(latest))
	for i := range latest {
		byConversation[latest[i].ConversationID] = &latest[i]
	}

	summaries := make([]domain.ConversationSummary, 0, len(counts))
	for _, c := range counts {
		last, ok := byConversation[c.ConversationID]
		if !ok {
			continue // emptied between the two queries
		}
		summaries = append(summaries, domain.ConversationSummary{
			ConversationID: c.ConversationID,
			MessageCount:   c.MessageCount,
			LastMessage:    last,
		})
	}
	return summaries, nil
}

func (r *gormMessageRepository) missingOrForeign(ctx context.Context, messageID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
		return errors.New("database error checking message existence")
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return ErrNotMessageAuthor
}

func (r *gormMessageRepository) validateMessageInput(message *domain.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if err := domain.ValidateConversationID(message.ConversationID); err != nil {
		return err
	}
	if message.SenderID == "" {
		return errors.New("sender ID is required")
	}
	body, err := domain.ValidateBody(message.Body)
	if err != nil {
		return err
	}
	message.Body = body
	return nil
}

func (r *gormMessageRepository) handleFindError(err error, message *domain.Message, operation string) (*domain.Message, error) {
	if err == nil {
		return message, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	r.logger.Error("database query error", "operation", operation, "error", err)
	return nil, errors.New("database query failed")
}
