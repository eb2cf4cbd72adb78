package message

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iyunix/go-designdesk/internal/database"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

func setupMessageTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open("sqlite", ":memory:", logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Create(&domain.Profile{ID: "u-1", DisplayName: "Ada", Role: domain.RoleClient}).Error)
	require.NoError(t, db.Create(&domain.Profile{ID: "u-2", DisplayName: "Grace", Role: domain.RoleDesigner}).Error)
	return db
}

func TestMessageRepository_Create(t *testing.T) {
	repo := NewMessageRepository(setupMessageTestDB(t), logger.NewNop())
	ctx := context.Background()

	t.Run("assigns id and joins sender", func(t *testing.T) {
		msg, err := repo.Create(ctx, &domain.Message{ConversationID: "conv-1", SenderID: "u-1", Body: "  hi  "})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "hi", msg.Body)
		require.NotNil(t, msg.Sender)
		assert.Equal(t, "Ada", msg.Sender.DisplayName)
	})

	t.Run("rejects sender without profile", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.Message{ConversationID: "conv-1", SenderID: "ghost", Body: "hi"})
		assert.ErrorIs(t, err, ErrSenderProfileMissing)
	})

	t.Run("rejects empty body", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.Message{ConversationID: "conv-1", SenderID: "u-1", Body: " "})
		assert.Error(t, err)
	})
}

func TestMessageRepository_FindByConversationOrdersByCreatedAt(t *testing.T) {
	db := setupMessageTestDB(t)
	repo := NewMessageRepository(db, logger.NewNop())
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, offset := range []int{5, 0, 2} {
		_, err := repo.Create(ctx, &domain.Message{
			ID:             []string{"m2", "m1", "m3"}[i],
			ConversationID: "conv-1",
			SenderID:       "u-1",
			Body:           "x",
			CreatedAt:      base.Add(time.Duration(offset) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, &domain.Message{ConversationID: "conv-2", SenderID: "u-2", Body: "other"})
	require.NoError(t, err)

	msgs, err := repo.FindByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
	assert.Equal(t, "m2", msgs[2].ID)

	page, total, err := repo.FindByConversationWithPagination(ctx, "conv-1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].ID)

	_, _, err = repo.FindByConversationWithPagination(ctx, "conv-1", 0, 0)
	assert.Error(t, err)
}

func TestMessageRepository_UpdateAndDeleteAreAuthorOnly(t *testing.T) {
	repo := NewMessageRepository(setupMessageTestDB(t), logger.NewNop())
	ctx := context.Background()

	msg, err := repo.Create(ctx, &domain.Message{ConversationID: "conv-1", SenderID: "u-1", Body: "draft"})
	require.NoError(t, err)

	_, err = repo.UpdateBody(ctx, msg.ID, "u-2", "hijack")
	assert.ErrorIs(t, err, ErrNotMessageAuthor)

	_, err = repo.UpdateBody(ctx, "missing", "u-1", "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	edited, err := repo.UpdateBody(ctx, msg.ID, "u-1", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Body)
	assert.NotNil(t, edited.EditedAt)
	assert.Equal(t, msg.CreatedAt.Unix(), edited.CreatedAt.Unix())

	_, err = repo.Delete(ctx, msg.ID, "u-2")
	assert.ErrorIs(t, err, ErrNotMessageAuthor)

	removed, err := repo.Delete(ctx, msg.ID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, removed.ID)

	_, err = repo.FindByID(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepository_ListConversations(t *testing.T) {
	db := setupMessageTestDB(t)
	repo := NewMessageRepository(db, logger.NewNop())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []domain.Message{
		{ID: "a1", ConversationID: "alpha", SenderID: "u-1", Body: "one", CreatedAt: base},
		{ID: "a2", ConversationID: "alpha", SenderID: "u-2", Body: "two", CreatedAt: base.Add(time.Minute)},
		{ID: "b1", ConversationID: "beta", SenderID: "u-1", Body: "late", CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, db.Create(&rows).Error)

	summaries, err := repo.ListConversations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "beta", summaries[0].ConversationID)
	assert.Equal(t, int64(1), summaries[0].MessageCount)
	assert.Equal(t, "alpha", summaries[1].ConversationID)
	assert.Equal(t, int64(2), summaries[1].MessageCount)
	require.NotNil(t, summaries[1].LastMessage)
	assert.Equal(t, "a2", summaries[1].LastMessage.ID)
	require.NotNil(t, summaries[1].LastMessage.Sender)
	assert.Equal(t, "Grace", summaries[1].LastMessage.Sender.DisplayName)

	limited, err := repo.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMessageRepository_ListConversationsQueryCount(t *testing.T) {
	db := setupMessageTestDB(t)
	repo := NewMessageRepository(db, logger.NewNop())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var rows []domain.Message
	for i := 0; i < 6; i++ {
		conv := fmt.Sprintf("conv-%d", i)
		rows = append(rows,
			domain.Message{ID: conv + "-a", ConversationID: conv, SenderID: "u-1", Body: "first", CreatedAt: base.Add(time.Duration(i) * time.Minute)},
			domain.Message{ID: conv + "-b", ConversationID: conv, SenderID: "u-2", Body: "second", CreatedAt: base.Add(time.Duration(i)*time.Minute + time.Second)},
		)
	}
	require.NoError(t, db.Create(&rows).Error)

	var queries int
	count := func(*gorm.DB) { queries++ }
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:count_query", count))
	require.NoError(t, db.Callback().Row().After("gorm:row").Register("test:count_row", count))

	summaries, err := repo.ListConversations(ctx, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, queries, 3)

	require.Len(t, summaries, 3)
	for i, want := range []string{"conv-5", "conv-4", "conv-3"} {
		assert.Equal(t, want, summaries[i].ConversationID)
		assert.Equal(t, int64(2), summaries[i].MessageCount)
		require.NotNil(t, summaries[i].LastMessage)
		assert.Equal(t, want+"-b", summaries[i].LastMessage.ID)
		require.NotNil(t, summaries[i].LastMessage.Sender)
	}
}
