// Package backend is the client side of the designdesk hosted backend: REST
// reads and writes plus a multiplexed realtime change feed.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iyunix/go-designdesk/internal/config"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

const defaultHTTPTimeout = 15 * time.Second

// Client is what the sync core needs from the backend.
type Client interface {
	Configured() bool
	QueryMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	FetchProfile(ctx context.Context, id string) (*domain.Profile, error)
	InsertMessage(ctx context.Context, conversationID, body string) (*domain.Message, error)
	Subscribe(ctx context.Context, topic string) (Feed, error)
}

// InboxClient adds the cross-conversation listing used by list watchers.
type InboxClient interface {
	Client
	QueryConversations(ctx context.Context) ([]domain.ConversationSummary, error)
}

// Feed is one topic subscription on the shared realtime connection.
type Feed interface {
	// Ready is closed once the backend confirms the topic is live.
	Ready() <-chan struct{}
	// Events delivers changes in transport order. It is closed when the feed
	// ends, either by Close or by a rejected join (see Err).
	Events() <-chan domain.ChangeEvent
	Err() error
	Close() error
}

// HTTPClient talks to the backend over REST and a lazily dialed websocket.
type HTTPClient struct {
	cfg        config.ClientConfig
	httpClient *http.Client
	logger     logger.Logger

	mu        sync.Mutex
	transport *Transport
}

// Option customises an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

func NewHTTPClient(cfg config.ClientConfig, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.NewNop(),
	}
	c.cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Configured() bool {
	return c.cfg.Configured()
}

// QueryMessages returns a conversation's messages ascending by creation time,
// each joined with its sender profile.
func (c *HTTPClient) QueryMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const op = "query messages"
	q := url.Values{"conversation_id": {conversationID}}
	var out []domain.Message
	if err := c.do(ctx, op, http.MethodGet, "/rest/v1/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryConversations returns the inbox summaries, most recently active first.
func (c *HTTPClient) QueryConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	if err := c.do(ctx, "query conversations", http.MethodGet, "/rest/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchProfile returns the public profile of a user.
func (c *HTTPClient) FetchProfile(ctx context.Context, id string) (*domain.Profile, error) {
	const op = "fetch profile"
	var out domain.Profile
	if err := c.do(ctx, op, http.MethodGet, "/rest/v1/users/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertMessage sends a message as the token's account.
func (c *HTTPClient) InsertMessage(ctx context.Context, conversationID, body string) (*domain.Message, error) {
	const op = "insert message"
	req := map[string]string{"conversation_id": conversationID, "body": body}
	var out domain.Message
	if err := c.do(ctx, op, http.MethodPost, "/rest/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportLog forwards a client diagnostic to the backend log. Failures are
// returned but are safe to ignore.
func (c *HTTPClient) ReportLog(ctx context.Context, level, message, conversationID string) error {
	req := map[string]string{"level": level, "message": message, "conversation_id": conversationID}
	return c.do(ctx, "report log", http.MethodPost, "/rest/v1/client-logs", req, nil)
}

// Subscribe joins topic on the shared realtime connection, dialing it on first use.
func (c *HTTPClient) Subscribe(ctx context.Context, topic string) (Feed, error) {
	if !c.Configured() {
		return nil, notConfigured("subscribe")
	}
	c.mu.Lock()
	if c.transport == nil {
		c.transport = NewTransport(c.websocketURL(), c.headers(), c.logger)
	}
	t := c.transport
	c.mu.Unlock()
	return t.Subscribe(ctx, topic)
}

// Close tears down the realtime connection, if one was opened.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.mu.Unlock()
	if t != nil {
		return t.Close()
	}
	return nil
}

func (c *HTTPClient) websocketURL() string {
	u := c.cfg.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/realtime/v1/websocket"
}

func (c *HTTPClient) headers() http.Header {
	h := http.Header{}
	h.Set("apikey", c.cfg.APIKey)
	if c.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return h
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	if !c.Configured() {
		return notConfigured(op)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindUnknown, Operation: op, Message: "encode request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Kind: KindUnknown, Operation: op, Message: "build request", Cause: err}
	}
	req.Header = c.headers()
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "operation", op, "error", err)
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := responseError(op, resp.StatusCode, data)
		c.logger.Debug("backend rejected request", "operation", op, "status", resp.StatusCode, "kind", be.Kind)
		return be
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindUnknown, Operation: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Cause: err}
	}
	return nil
}
