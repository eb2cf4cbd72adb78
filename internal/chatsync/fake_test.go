package chatsync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func msg(id, conv, sender string, minutes int) domain.Message {
	return domain.Message{ID: id, ConversationID: conv, SenderID: sender, Body: "body " + id, CreatedAt: at(minutes)}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

type fakeFeed struct {
	mu     sync.Mutex
	ready  chan struct{}
	events chan domain.ChangeEvent
	closed bool
	err    error
	rOnce  sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ready: make(chan struct{}), events: make(chan domain.ChangeEvent, 64)}
}

func (f *fakeFeed) Ready() <-chan struct{}            { return f.ready }
func (f *fakeFeed) Events() <-chan domain.ChangeEvent { return f.events }

func (f *fakeFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeFeed) Close() error {
	f.end(nil)
	return nil
}

func (f *fakeFeed) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.events)
}

func (f *fakeFeed) markReady() { f.rOnce.Do(func() { close(f.ready) }) }

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// emit delivers an event unless the feed is closed.
func (f *fakeFeed) emit(ev domain.ChangeEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.events <- ev
	return true
}

func insertEvent(m domain.Message) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.ChangeInsert, ConversationID: m.ConversationID, Record: &m}
}

func updateEvent(m domain.Message) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.ChangeUpdate, ConversationID: m.ConversationID, Record: &m}
}

func deleteEvent(m domain.Message) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.ChangeDelete, ConversationID: m.ConversationID, OldRecord: &m}
}

// fakeBackend is an in-memory backend.InboxClient.
type fakeBackend struct {
	mu sync.Mutex

	configured    bool
	autoReady     bool
	messages      map[string][]domain.Message
	profiles      map[string]*domain.Profile
	conversations []domain.ConversationSummary

	queryErr     error
	profileErr   error
	insertErr    error
	subscribeErr error

	// queryHook runs inside QueryMessages before results are returned.
	queryHook func(conversationID string)

	queryCalls     int
	profileCalls   int
	subscribeCalls int
	inboxCalls     int
	feeds          map[string][]*fakeFeed
	nextID         int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		configured: true,
		autoReady:  true,
		messages:   make(map[string][]domain.Message),
		profiles: map[string]*domain.Profile{
			"u-ada":   {ID: "u-ada", DisplayName: "Ada", Email: "ada@example.com", Role: domain.RoleClient},
			"u-grace": {ID: "u-grace", DisplayName: "Grace", Email: "grace@example.com", Role: domain.RoleDesigner},
		},
		feeds: make(map[string][]*fakeFeed),
	}
}

func (b *fakeBackend) Configured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configured
}

func (b *fakeBackend) setMessages(conv string, msgs ...domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[conv] = msgs
}

func (b *fakeBackend) QueryMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	b.mu.Lock()
	b.queryCalls++
	hook := b.queryHook
	err := b.queryErr
	rows := make([]domain.Message, 0, len(b.messages[conversationID]))
	for _, m := range b.messages[conversationID] {
		if p, ok := b.profiles[m.SenderID]; ok {
			cp := *p
			m.Sender = &cp
		}
		rows = append(rows, m)
	}
	b.mu.Unlock()

	if hook != nil {
		hook(conversationID)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *fakeBackend) FetchProfile(_ context.Context, id string) (*domain.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profileCalls++
	if b.profileErr != nil {
		return nil, b.profileErr
	}
	p, ok := b.profiles[id]
	if !ok {
		return nil, &backend.Error{Kind: backend.KindNotFound, Operation: "fetch profile", Status: 404}
	}
	cp := *p
	return &cp, nil
}

func (b *fakeBackend) InsertMessage(_ context.Context, conversationID, body string) (*domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	b.nextID++
	m := domain.Message{
		ID:             "sent-" + strconv.Itoa(b.nextID),
		ConversationID: conversationID,
		SenderID:       "u-ada",
		Body:           body,
		CreatedAt:      at(60 + b.nextID),
	}
	b.messages[conversationID] = append(b.messages[conversationID], m)
	cp := *b.profiles["u-ada"]
	m.Sender = &cp
	return &m, nil
}

func (b *fakeBackend) QueryConversations(context.Context) ([]domain.ConversationSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxCalls++
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	out := make([]domain.ConversationSummary, len(b.conversations))
	copy(out, b.conversations)
	return out, nil
}

func (b *fakeBackend) Subscribe(_ context.Context, topic string) (backend.Feed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeCalls++
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	f := newFakeFeed()
	if b.autoReady {
		f.markReady()
	}
	b.feeds[topic] = append(b.feeds[topic], f)
	return f, nil
}

// feed returns the newest feed opened for topic.
func (b *fakeBackend) feed(topic string) *fakeFeed {
	b.mu.Lock()
	defer b.mu.Unlock()
	fs := b.feeds[topic]
	if len(fs) == 0 {
		return nil
	}
	return fs[len(fs)-1]
}

func (b *fakeBackend) calls() (query, profile, subscribe int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queryCalls, b.profileCalls, b.subscribeCalls
}

var errOffline = &backend.Error{Kind: backend.KindNetworkUnavailable, Operation: "query messages", Message: "dial tcp: connection refused", Cause: errors.New("connection refused")}
