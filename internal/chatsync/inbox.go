package chatsync

import (
	"context"
	"sync"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// Inbox keeps the conversation list current. Any change on the list feed
// triggers a full re-query; bursts of changes collapse into one refresh.
type Inbox struct {
	client  backend.InboxClient
	manager *Manager
	logger  logger.Logger

	mu      sync.RWMutex
	rows    []domain.ConversationSummary
	lastErr error
	sub     *Subscription
	stop    context.CancelFunc

	pending chan struct{}
	changes chan struct{}
}

func NewInbox(client backend.InboxClient, log logger.Logger) *Inbox {
	if log == nil {
		log = logger.NewNop()
	}
	return &Inbox{
		client:  client,
		manager: NewManager(client, log),
		logger:  log,
		pending: make(chan struct{}, 1),
		changes: make(chan struct{}, 1),
	}
}

// Refresh re-runs the bulk query. On failure the previous rows are kept.
func (i *Inbox) Refresh(ctx context.Context) error {
	if !i.client.Configured() {
		err := notConfigured("refresh inbox")
		i.setResult(nil, err)
		return err
	}
	rows, err := i.client.QueryConversations(ctx)
	i.setResult(rows, err)
	return err
}

// Watch opens the list feed, loads once and keeps refreshing on change until
// Close or ctx is done.
func (i *Inbox) Watch(ctx context.Context) error {
	sub, err := i.manager.SubscribeList(ctx, i.request)
	if err != nil {
		i.setResult(nil, err)
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	i.mu.Lock()
	prev, prevStop := i.sub, i.stop
	i.sub, i.stop = sub, stop
	i.mu.Unlock()
	if prevStop != nil {
		prevStop()
	}
	i.manager.Unsubscribe(prev)

	if err := i.Refresh(ctx); err != nil {
		i.logger.Warn("inbox load failed", "kind", KindOf(err), "error", err)
	}
	go i.loop(runCtx)
	return nil
}

// Close stops watching.
func (i *Inbox) Close() {
	i.mu.Lock()
	sub, stop := i.sub, i.stop
	i.sub, i.stop = nil, nil
	i.mu.Unlock()
	if stop != nil {
		stop()
	}
	i.manager.Unsubscribe(sub)
}

func (i *Inbox) Conversations() []domain.ConversationSummary {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]domain.ConversationSummary, len(i.rows))
	copy(out, i.rows)
	return out
}

func (i *Inbox) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Changes signals after every refresh attempt.
func (i *Inbox) Changes() <-chan struct{} { return i.changes }

// State is the state of the list subscription.
func (i *Inbox) State() State {
	i.mu.RLock()
	sub := i.sub
	i.mu.RUnlock()
	if sub == nil {
		return StateClosed
	}
	return sub.State()
}

func (i *Inbox) request() {
	select {
	case i.pending <- struct{}{}:
	default:
	}
}

func (i *Inbox) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.pending:
			if err := i.Refresh(ctx); err != nil && ctx.Err() == nil {
				i.logger.Warn("inbox refresh failed", "kind", KindOf(err), "error", err)
			}
		}
	}
}

func (i *Inbox) setResult(rows []domain.ConversationSummary, err error) {
	i.mu.Lock()
	if err == nil {
		i.rows = rows
	}
	i.lastErr = err
	i.mu.Unlock()

	select {
	case i.changes <- struct{}{}:
	default:
	}
}
