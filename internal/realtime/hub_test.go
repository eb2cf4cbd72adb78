package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("closed")
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *recordingSubscriber) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

type recordingRelay struct {
	events []domain.ChangeEvent
}

func (r *recordingRelay) Publish(_ context.Context, event domain.ChangeEvent) error {
	r.events = append(r.events, event)
	return nil
}

func insertEvent(conv, id string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Type:           domain.ChangeInsert,
		Table:          "messages",
		ConversationID: conv,
		Record:         &domain.Message{ID: id, ConversationID: conv},
	}
}

func TestHubDeliversByTopic(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conv1 := &recordingSubscriber{id: "a"}
	conv2 := &recordingSubscriber{id: "b"}
	inbox := &recordingSubscriber{id: "c"}

	hub.Join(domain.ConversationTopic("conv-1"), conv1)
	hub.Join(domain.ConversationTopic("conv-2"), conv2)
	hub.Join(domain.AllMessagesTopic, inbox)

	delivered := hub.Publish(context.Background(), insertEvent("conv-1", "m1"))
	assert.Equal(t, 2, delivered)

	require.Len(t, conv1.received(), 1)
	assert.Equal(t, FrameChange, conv1.received()[0].Type)
	assert.Equal(t, "messages:conv-1", conv1.received()[0].Topic)
	assert.Equal(t, "m1", conv1.received()[0].Event.Record.ID)
	assert.Empty(t, conv2.received())
	require.Len(t, inbox.received(), 1)
	assert.Equal(t, domain.AllMessagesTopic, inbox.received()[0].Topic)
}

func TestHubLeaveAndDetach(t *testing.T) {
	hub := NewHub(logger.NewNop())
	sub := &recordingSubscriber{id: "a"}
	topic := domain.ConversationTopic("conv-1")

	hub.Join(topic, sub)
	hub.Join(domain.AllMessagesTopic, sub)
	assert.ElementsMatch(t, []string{topic, domain.AllMessagesTopic}, hub.Topics(sub))

	hub.Leave(topic, sub)
	assert.Equal(t, 0, hub.Subscribers(topic))
	assert.Equal(t, 1, hub.Subscribers(domain.AllMessagesTopic))

	hub.Detach(sub)
	assert.Equal(t, 0, hub.Subscribers(domain.AllMessagesTopic))
	assert.Empty(t, hub.Topics(sub))
	assert.Equal(t, 0, hub.Deliver(insertEvent("conv-1", "m1")))
}

func TestHubSkipsFailingSubscribers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	hub.Join(domain.ConversationTopic("conv-1"), &recordingSubscriber{id: "dead", fail: true})
	ok := &recordingSubscriber{id: "ok"}
	hub.Join(domain.ConversationTopic("conv-1"), ok)

	assert.Equal(t, 1, hub.Deliver(insertEvent("conv-1", "m1")))
	assert.Len(t, ok.received(), 1)
}

func TestHubForwardsToRelay(t *testing.T) {
	hub := NewHub(logger.NewNop())
	relay := &recordingRelay{}
	hub.SetRelay(relay)

	hub.Publish(context.Background(), insertEvent("conv-1", "m1"))
	require.Len(t, relay.events, 1)
	assert.Equal(t, "conv-1", relay.events[0].ConversationID)
}

func TestRelayEnvelopeSkipsOwnNode(t *testing.T) {
	hub := NewHub(logger.NewNop())
	sub := &recordingSubscriber{id: "a"}
	hub.Join(domain.ConversationTopic("conv-1"), sub)
	relay := &RedisRelay{node: "node-a", hub: hub, logger: logger.NewNop()}

	own, err := encodeEnvelope("node-a", insertEvent("conv-1", "m1"))
	require.NoError(t, err)
	relay.handle(own)
	assert.Empty(t, sub.received())

	remote, err := encodeEnvelope("node-b", insertEvent("conv-1", "m2"))
	require.NoError(t, err)
	relay.handle(remote)
	require.Len(t, sub.received(), 1)
	assert.Equal(t, "m2", sub.received()[0].Event.Record.ID)

	relay.handle([]byte("not json"))
	relay.handle([]byte(`{"node":"node-b","event":{}}`))
	assert.Len(t, sub.received(), 1)
}

type stuckSubscriber struct {
	id      string
	entered chan struct{}
	release chan struct{}
}

func (s *stuckSubscriber) ID() string { return s.id }

func (s *stuckSubscriber) Send([]byte) error {
	close(s.entered)
	<-s.release
	return nil
}

func TestHubStuckSubscriberDoesNotHoldLock(t *testing.T) {
	hub := NewHub(logger.NewNop())
	stuck := &stuckSubscriber{id: "stuck", entered: make(chan struct{}), release: make(chan struct{})}
	hub.Join(domain.ConversationTopic("conv-1"), stuck)

	go hub.Deliver(insertEvent("conv-1", "m1"))
	select {
	case <-stuck.entered:
	case <-time.After(time.Second):
		t.Fatal("delivery never reached the subscriber")
	}
	defer close(stuck.release)

	other := &recordingSubscriber{id: "other"}
	done := make(chan int)
	go func() {
		hub.Join(domain.ConversationTopic("conv-2"), other)
		n := hub.Deliver(insertEvent("conv-2", "m2"))
		hub.Detach(other)
		done <- n
	}()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
		assert.Len(t, other.received(), 1)
	case <-time.After(time.Second):
		t.Fatal("hub blocked behind a stuck subscriber")
	}
}
