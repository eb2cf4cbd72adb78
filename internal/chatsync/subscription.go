package chatsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// State is the lifecycle of one subscription: Closed → Opening → Open → Closed.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// FeedSubscriber opens topic feeds on the shared push transport.
type FeedSubscriber interface {
	Configured() bool
	Subscribe(ctx context.Context, topic string) (backend.Feed, error)
}

// Handlers receive row changes for one conversation, in transport order.
// A nil handler skips that change type.
type Handlers struct {
	OnInsert func(ctx context.Context, msg domain.Message)
	OnUpdate func(ctx context.Context, msg domain.Message)
	OnDelete func(ctx context.Context, msg domain.Message)
}

// Subscription is a handle to one live feed.
type Subscription struct {
	topic  string
	state  atomic.Int32
	feed   backend.Feed
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Done is closed when event dispatch has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		_ = s.feed.Close()
	})
}

// Manager opens and closes change subscriptions. It does not retry; the
// transport reconnects and re-joins on its own.
type Manager struct {
	client FeedSubscriber
	logger logger.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewManager(client FeedSubscriber, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{client: client, logger: log, subs: make(map[*Subscription]struct{})}
}

// Subscribe opens a feed filtered to one conversation.
func (m *Manager) Subscribe(ctx context.Context, conversationID string, h Handlers) (*Subscription, error) {
	if err := domain.ValidateConversationID(conversationID); err != nil {
		return nil, &backend.Error{Kind: NotFound, Operation: "subscribe", Message: err.Error(), Cause: err}
	}
	return m.open(ctx, domain.ConversationTopic(conversationID), func(ctx context.Context, ev domain.ChangeEvent) {
		dispatch(ctx, ev, h)
	})
}

// SubscribeList opens the unfiltered feed. Payloads are not decoded: every
// change anywhere calls onAnyChange, and callers re-run their own bulk query.
func (m *Manager) SubscribeList(ctx context.Context, onAnyChange func()) (*Subscription, error) {
	return m.open(ctx, domain.AllMessagesTopic, func(context.Context, domain.ChangeEvent) {
		if onAnyChange != nil {
			onAnyChange()
		}
	})
}

// Unsubscribe closes sub. Calling it again, or with nil, does nothing.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
	sub.close()
}

// Close unsubscribes everything the manager opened.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.subs = make(map[*Subscription]struct{})
	m.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

// Active counts subscriptions that have not been closed.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) open(ctx context.Context, topic string, handle func(context.Context, domain.ChangeEvent)) (*Subscription, error) {
	if !m.client.Configured() {
		return nil, notConfigured("subscribe")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{topic: topic, cancel: cancel, done: make(chan struct{})}
	sub.state.Store(int32(StateOpening))

	feed, err := m.client.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		sub.state.Store(int32(StateClosed))
		close(sub.done)
		m.logger.Warn("subscribe failed", "topic", topic, "kind", KindOf(err), "error", err)
		return nil, err
	}
	sub.feed = feed

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go m.run(runCtx, sub, handle)
	return sub, nil
}

// run dispatches events from a single goroutine so handlers see transport order.
func (m *Manager) run(ctx context.Context, sub *Subscription, handle func(context.Context, domain.ChangeEvent)) {
	defer close(sub.done)

	ready := sub.feed.Ready()
	events := sub.feed.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			sub.state.CompareAndSwap(int32(StateOpening), int32(StateOpen))
			ready = nil
		case ev, ok := <-events:
			if !ok {
				if err := sub.feed.Err(); err != nil {
					m.logger.Warn("feed ended", "topic", sub.topic, "error", err)
				}
				m.mu.Lock()
				delete(m.subs, sub)
				m.mu.Unlock()
				sub.state.Store(int32(StateClosed))
				return
			}
			if ctx.Err() != nil {
				return
			}
			handle(ctx, ev)
		}
	}
}

func dispatch(ctx context.Context, ev domain.ChangeEvent, h Handlers) {
	switch ev.Type {
	case domain.ChangeInsert:
		if h.OnInsert != nil && ev.Record != nil {
			h.OnInsert(ctx, *ev.Record)
		}
	case domain.ChangeUpdate:
		if h.OnUpdate != nil && ev.Record != nil {
			h.OnUpdate(ctx, *ev.Record)
		}
	case domain.ChangeDelete:
		row := ev.OldRecord
		if row == nil {
			row = ev.Record
		}
		if h.OnDelete != nil && row != nil {
			h.OnDelete(ctx, *row)
		}
	}
}
