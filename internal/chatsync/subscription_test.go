package chatsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func TestSubscriptionStateMachine(t *testing.T) {
	fb := newFakeBackend()
	fb.autoReady = false
	m := NewManager(fb, logger.NewNop())

	sub, err := m.Subscribe(context.Background(), "c", Handlers{})
	require.NoError(t, err)
	assert.Equal(t, StateOpening, sub.State())
	assert.Equal(t, domain.ConversationTopic("c"), sub.Topic())

	fb.feed(sub.Topic()).markReady()
	assert.Eventually(t, func() bool { return sub.State() == StateOpen }, waitFor, tick)

	m.Unsubscribe(sub)
	assert.Equal(t, StateClosed, sub.State())
	assert.True(t, fb.feed(sub.Topic()).isClosed())
	assert.Zero(t, m.Active())

	assert.NotPanics(t, func() {
		m.Unsubscribe(sub)
		m.Unsubscribe(nil)
	})
	<-sub.Done()
}

func TestSubscribeNotConfigured(t *testing.T) {
	fb := newFakeBackend()
	fb.configured = false
	m := NewManager(fb, logger.NewNop())

	_, err := m.Subscribe(context.Background(), "c", Handlers{})
	assert.Equal(t, NotConfigured, KindOf(err))
	_, err = m.SubscribeList(context.Background(), func() {})
	assert.Equal(t, NotConfigured, KindOf(err))

	_, _, subs := fb.calls()
	assert.Zero(t, subs)
}

func TestSubscribeTransportFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.subscribeErr = &backend.Error{Kind: backend.KindAuthRequired, Operation: "subscribe", Status: 401}
	m := NewManager(fb, logger.NewNop())

	_, err := m.Subscribe(context.Background(), "c", Handlers{})
	assert.Equal(t, AuthRequired, KindOf(err))
	assert.Zero(t, m.Active())
}

func TestEventsDispatchInTransportOrder(t *testing.T) {
	fb := newFakeBackend()
	m := NewManager(fb, logger.NewNop())

	var mu sync.Mutex
	var seen []string
	record := func(kind string) func(context.Context, domain.Message) {
		return func(_ context.Context, msg domain.Message) {
			mu.Lock()
			seen = append(seen, kind+":"+msg.ID+":"+msg.Body)
			mu.Unlock()
		}
	}
	sub, err := m.Subscribe(context.Background(), "c", Handlers{
		OnInsert: record("insert"),
		OnUpdate: record("update"),
		OnDelete: record("delete"),
	})
	require.NoError(t, err)
	defer m.Unsubscribe(sub)

	feed := fb.feed(sub.Topic())
	m1 := msg("m1", "c", "u-ada", 0)
	edited := m1
	edited.Body = "v2"
	feed.emit(insertEvent(m1))
	feed.emit(updateEvent(edited))
	feed.emit(deleteEvent(m1))

	want := []string{"insert:m1:body m1", "update:m1:v2", "delete:m1:body m1"}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, waitFor, tick)
	mu.Lock()
	assert.Equal(t, want, seen)
	mu.Unlock()
}

func TestNoEventsAfterUnsubscribe(t *testing.T) {
	fb := newFakeBackend()
	m := NewManager(fb, logger.NewNop())

	var count atomic.Int32
	sub, err := m.Subscribe(context.Background(), "c", Handlers{
		OnInsert: func(context.Context, domain.Message) { count.Add(1) },
	})
	require.NoError(t, err)
	feed := fb.feed(sub.Topic())

	m.Unsubscribe(sub)
	<-sub.Done()
	assert.False(t, feed.emit(insertEvent(msg("m1", "c", "u-ada", 0))))
	assert.Zero(t, count.Load())
}

func TestFeedEndClosesSubscription(t *testing.T) {
	fb := newFakeBackend()
	m := NewManager(fb, logger.NewNop())

	sub, err := m.Subscribe(context.Background(), "c", Handlers{})
	require.NoError(t, err)

	fb.feed(sub.Topic()).end(backend.ErrTransportClosed)
	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("dispatch did not stop")
	}
	assert.Equal(t, StateClosed, sub.State())
	assert.Zero(t, m.Active())
}

func TestSubscribeListSignalsWithoutDecoding(t *testing.T) {
	fb := newFakeBackend()
	m := NewManager(fb, logger.NewNop())

	var count atomic.Int32
	sub, err := m.SubscribeList(context.Background(), func() { count.Add(1) })
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, domain.AllMessagesTopic, sub.Topic())

	feed := fb.feed(domain.AllMessagesTopic)
	feed.emit(insertEvent(msg("m1", "a", "u-ada", 0)))
	feed.emit(deleteEvent(msg("m2", "b", "u-ada", 0)))
	feed.emit(domain.ChangeEvent{Type: domain.ChangeUpdate})

	assert.Eventually(t, func() bool { return count.Load() == 3 }, waitFor, tick)
}

func TestSubscribeRejectsBadConversationID(t *testing.T) {
	m := NewManager(newFakeBackend(), logger.NewNop())

	_, err := m.Subscribe(context.Background(), "", Handlers{})
	assert.Error(t, err)
	_, err = m.Subscribe(context.Background(), "a:b", Handlers{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
}
