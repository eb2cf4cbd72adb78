// Package chatsync keeps an in-memory, ordered view of one conversation in
// step with the backend: a snapshot load plus the live change feed.
package chatsync

import (
	"context"
	"errors"
	"sync"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// Session is the controller behind one conversation view. It owns a Store, at
// most one conversation subscription and the profile cache.
type Session struct {
	client   backend.Client
	store    *Store
	manager  *Manager
	profiles *ProfileCache
	logger   logger.Logger

	mu             sync.Mutex
	conversationID string
	generation     uint64
	sub            *Subscription
	rec            *Reconciler

	changes chan struct{}
}

func NewSession(client backend.Client, log logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Session{
		client:   client,
		store:    NewStore(client),
		manager:  NewManager(client, log),
		profiles: NewProfileCache(client),
		logger:   log,
		changes:  make(chan struct{}, 1),
	}
	s.store.OnChange(s.notify)
	return s
}

// Open switches the session to conversationID. The previous feed is closed
// first. The new feed is opened before the snapshot is read and its events are
// held until the snapshot is in the store, then replayed; ids already in the
// snapshot are dropped. An empty id clears the view.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	prev := s.sub
	s.sub, s.rec = nil, nil
	s.conversationID = conversationID
	s.mu.Unlock()

	s.manager.Unsubscribe(prev)

	if conversationID == "" || !s.client.Configured() {
		return s.store.Load(ctx, conversationID)
	}

	rec := NewReconciler(s.store, s.profiles, conversationID, s.logger)
	g := &gate{}
	h := rec.Handlers()
	guarded := Handlers{
		OnInsert: func(ctx context.Context, m domain.Message) { g.run(s.guard(gen, func() { h.OnInsert(ctx, m) })) },
		OnUpdate: func(ctx context.Context, m domain.Message) { g.run(s.guard(gen, func() { h.OnUpdate(ctx, m) })) },
		OnDelete: func(ctx context.Context, m domain.Message) { g.run(s.guard(gen, func() { h.OnDelete(ctx, m) })) },
	}

	sub, err := s.manager.Subscribe(ctx, conversationID, guarded)
	if err != nil {
		if s.current(gen) {
			s.store.fail(err)
		}
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.manager.Unsubscribe(sub)
		return ErrSuperseded
	}
	s.sub, s.rec = sub, rec
	s.mu.Unlock()

	if err := s.store.Load(ctx, conversationID); err != nil {
		s.mu.Lock()
		if s.sub == sub {
			s.sub, s.rec = nil, nil
		}
		s.mu.Unlock()
		s.manager.Unsubscribe(sub)
		if !errors.Is(err, ErrSuperseded) {
			s.logger.Warn("conversation load failed", "conversation_id", conversationID, "kind", KindOf(err), "error", err)
		}
		return err
	}

	for _, m := range s.store.Current() {
		s.profiles.Put(m.Sender)
	}
	g.release()
	s.logger.Debug("conversation open", "conversation_id", conversationID, "messages", len(s.store.Current()))
	return nil
}

// Retry re-runs Open for the current conversation.
func (s *Session) Retry(ctx context.Context) error {
	return s.Open(ctx, s.ConversationID())
}

// Send posts body to the open conversation and shows the stored row at once.
// The matching insert event is then dropped as a duplicate.
func (s *Session) Send(ctx context.Context, body string) (*domain.Message, error) {
	s.mu.Lock()
	conversationID, rec, gen := s.conversationID, s.rec, s.generation
	s.mu.Unlock()

	if !s.client.Configured() {
		return nil, notConfigured("send")
	}
	if conversationID == "" {
		return nil, ErrNoConversation
	}

	msg, err := s.client.InsertMessage(ctx, conversationID, body)
	if err != nil {
		s.logger.Warn("send failed", "conversation_id", conversationID, "kind", KindOf(err), "error", err)
		return nil, err
	}
	if rec != nil && s.current(gen) {
		rec.OnInsert(ctx, *msg)
	}
	return msg, nil
}

// Close drops the feed and discards the list.
func (s *Session) Close() {
	s.mu.Lock()
	s.generation++
	prev := s.sub
	s.sub, s.rec = nil, nil
	s.conversationID = ""
	s.mu.Unlock()

	s.manager.Unsubscribe(prev)
	_ = s.store.Load(context.Background(), "")
}

// Changes signals after store mutations. Signals coalesce; read Messages for
// the latest state.
func (s *Session) Changes() <-chan struct{} { return s.changes }

func (s *Session) Messages() []domain.Message { return s.store.Current() }

// Err is the last classified load or subscribe error, nil after a good load.
func (s *Session) Err() error { return s.store.LastError() }

// ConversationID is the conversation most recently passed to Open; Send
// posts there.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// LoadedConversationID is the conversation whose messages Messages returns.
// It lags ConversationID after a failed switch, since a failed load keeps the
// previous list; a view compares the two to mark that list as stale.
func (s *Session) LoadedConversationID() string {
	return s.store.ConversationID()
}

// State is the state of the conversation subscription.
func (s *Session) State() State {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return StateClosed
	}
	return sub.State()
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

// guard drops work that belongs to an earlier Open.
func (s *Session) guard(gen uint64, fn func()) func() {
	return func() {
		if s.current(gen) {
			fn()
		}
	}
}

// gate holds callbacks until release, then runs them in arrival order.
type gate struct {
	mu      sync.Mutex
	open    bool
	pending []func()
}

func (g *gate) run(fn func()) {
	g.mu.Lock()
	if !g.open {
		g.pending = append(g.pending, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}

func (g *gate) release() {
	for {
		g.mu.Lock()
		if len(g.pending) == 0 {
			g.open = true
			g.mu.Unlock()
			return
		}
		batch := g.pending
		g.pending = nil
		g.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}
