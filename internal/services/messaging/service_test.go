package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-designdesk/internal/database"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/repository/message"
)

type recordingPublisher struct {
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.ChangeEvent) int {
	p.events = append(p.events, event)
	return 1
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	db, err := database.Open("sqlite", ":memory:", logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Create(&domain.Profile{ID: "u-1", DisplayName: "Ada", Role: domain.RoleClient}).Error)
	require.NoError(t, db.Create(&domain.Profile{ID: "u-2", DisplayName: "Grace", Role: domain.RoleDesigner}).Error)

	pub := &recordingPublisher{}
	repo := message.NewMessageRepository(db, logger.NewNop())
	return NewService(repo, pub, NewRenderer(), logger.NewNop()), pub
}

func TestSendPublishesInsert(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "u-1", "conv-1", "hello **there**")
	require.NoError(t, err)
	require.NotNil(t, msg.Sender)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, domain.ChangeInsert, ev.Type)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, msg.ID, ev.Record.ID)
	assert.Nil(t, ev.Record.Sender)
}

func TestSendWithoutProfileIsOwnershipViolation(t *testing.T) {
	svc, pub := newTestService(t)

	_, err := svc.Send(context.Background(), "acct-without-profile", "conv-1", "hi")
	require.Error(t, err)
	assert.Equal(t, ErrTypeOwnership, TypeOf(err))
	assert.Empty(t, pub.events)
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Send(context.Background(), "u-1", "", "hi")
	assert.Equal(t, ErrTypeValidation, TypeOf(err))

	_, err = svc.Send(context.Background(), "u-1", "conv-1", "   ")
	assert.Equal(t, ErrTypeValidation, TypeOf(err))
}

func TestEditAndDelete(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "u-1", "conv-1", "draft")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, "u-2", msg.ID, "nope")
	assert.Equal(t, ErrTypeForbidden, TypeOf(err))

	_, err = svc.Edit(ctx, "u-1", "missing", "x")
	assert.Equal(t, ErrTypeNotFound, TypeOf(err))

	edited, err := svc.Edit(ctx, "u-1", msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Body)

	require.NoError(t, svc.Delete(ctx, "u-1", msg.ID))
	assert.Equal(t, ErrTypeNotFound, TypeOf(svc.Delete(ctx, "u-1", msg.ID)))

	require.Len(t, pub.events, 3)
	assert.Equal(t, domain.ChangeUpdate, pub.events[1].Type)
	assert.Equal(t, "draft", pub.events[1].OldRecord.Body)
	assert.Equal(t, domain.ChangeDelete, pub.events[2].Type)
	assert.Nil(t, pub.events[2].Record)
	assert.Equal(t, msg.ID, pub.events[2].OldRecord.ID)
	assert.Equal(t, "conv-1", pub.events[2].ConversationID)
}

func TestListIsOrderedAndScoped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Send(ctx, "u-1", "conv-1", "one")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "u-2", "conv-2", "elsewhere")
	require.NoError(t, err)
	second, err := svc.Send(ctx, "u-2", "conv-1", "two")
	require.NoError(t, err)

	msgs, err := svc.List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
	assert.Equal(t, "Grace", msgs[1].Sender.DisplayName)
}

func TestRenderBodyEscapesHTML(t *testing.T) {
	svc, _ := newTestService(t)
	html := svc.RenderBody("**bold** <script>alert(1)</script>")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.False(t, strings.Contains(html, "<script>"))
}

func TestListPageSeparatesBadInputFromStorageFailure(t *testing.T) {
	db, err := database.Open("sqlite", ":memory:", logger.NewNop())
	require.NoError(t, err)
	svc := NewService(message.NewMessageRepository(db, logger.NewNop()), &recordingPublisher{}, NewRenderer(), logger.NewNop())
	ctx := context.Background()

	_, _, err = svc.ListPage(ctx, "conv-1", 0, 0)
	assert.Equal(t, ErrTypeValidation, TypeOf(err))
	_, _, err = svc.ListPage(ctx, "conv-1", 10, -1)
	assert.Equal(t, ErrTypeValidation, TypeOf(err))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, _, err = svc.ListPage(ctx, "conv-1", 10, 0)
	require.Error(t, err)
	assert.Equal(t, ErrTypeInternal, TypeOf(err))
}
