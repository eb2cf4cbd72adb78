package chatsync

import (
	"context"
	"sort"
	"sync"

	"github.com/iyunix/go-designdesk/internal/domain"
)

// MessageQuerier performs the bulk read behind Load.
type MessageQuerier interface {
	Configured() bool
	QueryMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// Store holds the ordered messages of at most one conversation. Messages are
// kept ascending by CreatedAt and ids are unique. It is safe for concurrent use.
type Store struct {
	client MessageQuerier

	mu             sync.RWMutex
	conversationID string
	messages       []domain.Message
	ids            map[string]struct{}
	generation     uint64
	lastErr        error
	onChange       func()
}

func NewStore(client MessageQuerier) *Store {
	return &Store{client: client, ids: make(map[string]struct{})}
}

// OnChange registers fn to run after every mutation, outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load replaces the list with the conversation's messages. An empty id clears
// the store without a network call. On failure the previous list is kept and
// the classified error is both recorded and returned. A load overtaken by a
// newer Load returns ErrSuperseded and changes nothing.
func (s *Store) Load(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if conversationID == "" {
		s.reset("")
		s.lastErr = nil
		s.mu.Unlock()
		s.changed()
		return nil
	}
	if !s.client.Configured() {
		s.lastErr = notConfigured("load")
		err := s.lastErr
		s.mu.Unlock()
		s.changed()
		return err
	}
	s.mu.Unlock()

	msgs, err := s.client.QueryMessages(ctx, conversationID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.changed()
		return err
	}
	s.reset(conversationID)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	for _, m := range msgs {
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.ids[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.changed()
	return nil
}

// Append inserts msg at its CreatedAt position. Equal timestamps keep arrival
// order. It reports false when the id is already present.
func (s *Store) Append(msg domain.Message) bool {
	s.mu.Lock()
	if _, dup := s.ids[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.ids[msg.ID] = struct{}{}

	n := len(s.messages)
	if n == 0 || !msg.CreatedAt.Before(s.messages[n-1].CreatedAt) {
		s.messages = append(s.messages, msg)
	} else {
		idx := sort.Search(n, func(i int) bool { return s.messages[i].CreatedAt.After(msg.CreatedAt) })
		s.messages = append(s.messages, domain.Message{})
		copy(s.messages[idx+1:], s.messages[idx:])
		s.messages[idx] = msg
	}
	s.mu.Unlock()
	s.changed()
	return true
}

// Replace merges the mutable fields of msg into the entry with the same id.
// Sender, ID and CreatedAt are never changed. It reports false when absent.
func (s *Store) Replace(msg domain.Message) bool {
	s.mu.Lock()
	idx := s.indexOf(msg.ID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	cur := &s.messages[idx]
	cur.Body = msg.Body
	if msg.EditedAt != nil {
		edited := *msg.EditedAt
		cur.EditedAt = &edited
	}
	if !msg.UpdatedAt.IsZero() {
		cur.UpdatedAt = msg.UpdatedAt
	}
	s.mu.Unlock()
	s.changed()
	return true
}

// Remove deletes the entry with id. It reports false when absent.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	delete(s.ids, id)
	s.mu.Unlock()
	s.changed()
	return true
}

// Has reports whether id is in the store.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Current returns a copy of the ordered list. Sender profiles are shared
// snapshots and must not be modified.
func (s *Store) Current() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ConversationID is the conversation the current list belongs to.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// LastError is the classified error of the most recent failed operation, or nil.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// fail records err without touching the list.
func (s *Store) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.changed()
}

func (s *Store) reset(conversationID string) {
	s.conversationID = conversationID
	s.messages = nil
	s.ids = make(map[string]struct{})
}

func (s *Store) indexOf(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
