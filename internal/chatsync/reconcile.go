package chatsync

import (
	"context"
	"sync"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// UnknownUserName is the display name of the placeholder sender.
const UnknownUserName = "Unknown User"

// ProfileFetcher looks up public profiles by id.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// PlaceholderProfile stands in for a sender whose profile could not be fetched.
func PlaceholderProfile(senderID string) *domain.Profile {
	return &domain.Profile{ID: senderID, DisplayName: UnknownUserName, Email: "", Role: domain.RoleClient}
}

// ProfileCache remembers fetched profiles. Entries are arrival-time snapshots
// and are never refreshed. Failed lookups are not cached.
type ProfileCache struct {
	fetcher ProfileFetcher

	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func NewProfileCache(fetcher ProfileFetcher) *ProfileCache {
	return &ProfileCache{fetcher: fetcher, profiles: make(map[string]*domain.Profile)}
}

// Lookup returns the cached profile or fetches it.
func (c *ProfileCache) Lookup(ctx context.Context, id string) (*domain.Profile, error) {
	c.mu.Lock()
	p, ok := c.profiles[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := c.fetcher.FetchProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.ID == "" {
		return nil, nil
	}
	c.Put(p)
	return p, nil
}

// Put seeds the cache, for instance from profiles joined by a bulk load.
func (c *ProfileCache) Put(p *domain.Profile) {
	if p == nil || p.ID == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.profiles[p.ID]; !ok {
		cp := *p
		c.profiles[p.ID] = &cp
	}
	c.mu.Unlock()
}

// Reconciler merges change events for one conversation into a Store.
type Reconciler struct {
	store          *Store
	profiles       *ProfileCache
	conversationID string
	logger         logger.Logger
}

func NewReconciler(store *Store, profiles *ProfileCache, conversationID string, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{store: store, profiles: profiles, conversationID: conversationID, logger: log}
}

// Handlers adapts the reconciler to a subscription.
func (r *Reconciler) Handlers() Handlers {
	return Handlers{OnInsert: r.OnInsert, OnUpdate: r.OnUpdate, OnDelete: r.OnDelete}
}

// OnInsert appends raw with its sender profile. Duplicates are ignored and a
// failed profile lookup degrades to the placeholder.
func (r *Reconciler) OnInsert(ctx context.Context, raw domain.Message) {
	if !r.belongs(raw) || r.store.Has(raw.ID) {
		return
	}

	msg := raw
	if msg.Sender == nil || msg.Sender.ID == "" {
		profile, err := r.profiles.Lookup(ctx, raw.SenderID)
		if err != nil || profile == nil {
			if err != nil {
				r.logger.Debug("sender profile unavailable", "sender_id", raw.SenderID, "kind", KindOf(err))
			}
			profile = PlaceholderProfile(raw.SenderID)
		}
		msg.Sender = profile
	} else {
		r.profiles.Put(msg.Sender)
	}

	r.store.Append(msg)
}

// OnUpdate merges an edit into an existing entry; unknown ids are ignored.
func (r *Reconciler) OnUpdate(_ context.Context, raw domain.Message) {
	if !r.belongs(raw) {
		return
	}
	r.store.Replace(raw)
}

// OnDelete removes the entry; unknown ids are ignored.
func (r *Reconciler) OnDelete(_ context.Context, raw domain.Message) {
	if !r.belongs(raw) {
		return
	}
	r.store.Remove(raw.ID)
}

// belongs filters rows of other conversations. Rows without a conversation id
// (sparse delete payloads) are accepted.
func (r *Reconciler) belongs(raw domain.Message) bool {
	return raw.ID != "" && (raw.ConversationID == "" || raw.ConversationID == r.conversationID)
}
