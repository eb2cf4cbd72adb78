package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/realtime"
)

const (
	dialTimeout    = 10 * time.Second
	writeWait      = 10 * time.Second
	readWait       = 75 * time.Second
	resetThreshold = 60 * time.Second
)

// ErrTransportClosed ends every feed of a closed transport.
var ErrTransportClosed = errors.New("realtime transport closed")

// Transport multiplexes topic feeds over one websocket. When the connection
// drops it redials with exponential backoff and re-joins every active topic.
type Transport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger logger.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	feeds   map[string]map[*feed]struct{}

	// topicMu orders join and leave writes with feed membership changes.
	topicMu sync.Mutex
	writeMu sync.Mutex
	refSeq  atomic.Uint64
}

func NewTransport(wsURL string, header http.Header, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		url:        wsURL,
		header:     header,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:     log,
		MinBackoff: 2 * time.Second,
		MaxBackoff: 30 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		feeds:      make(map[string]map[*feed]struct{}),
	}
}

// Subscribe registers a feed for topic. The first call dials the connection
// and returns a classified error when the backend cannot be reached.
func (t *Transport) Subscribe(ctx context.Context, topic string) (Feed, error) {
	if t.ctx.Err() != nil {
		return nil, &Error{Kind: KindNetworkUnavailable, Operation: "subscribe", Message: ErrTransportClosed.Error(), Cause: ErrTransportClosed}
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	f := newFeed(t, topic)
	t.topicMu.Lock()
	defer t.topicMu.Unlock()
	t.mu.Lock()
	set := t.feeds[topic]
	if set == nil {
		set = make(map[*feed]struct{})
		t.feeds[topic] = set
	}
	set[f] = struct{}{}
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		if err := t.send(conn, realtime.Frame{Type: realtime.FrameJoin, Topic: topic, Ref: t.nextRef()}); err != nil {
			// The read loop notices the broken connection and re-joins after redialing.
			t.logger.Warn("realtime join write failed", "topic", topic, "error", err)
		}
	}
	return f, nil
}

// Close ends every feed and the connection. It is safe to call more than once.
func (t *Transport) Close() error {
	t.cancel()

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	var all []*feed
	for _, set := range t.feeds {
		for f := range set {
			all = append(all, f)
		}
	}
	t.feeds = make(map[string]map[*feed]struct{})
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, f := range all {
		f.finish(ErrTransportClosed)
	}
	return nil
}

// Topics lists the topics with at least one open feed.
func (t *Transport) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.feeds))
	for topic := range t.feeds {
		out = append(out, topic)
	}
	return out
}

func (t *Transport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if running {
		return nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.running || t.ctx.Err() != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.running = true
	t.conn = conn
	t.mu.Unlock()

	go t.loop(conn)
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	const op = "subscribe"
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, responseError(op, resp.StatusCode, body)
		}
		return nil, transportError(op, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return conn, nil
}

// loop owns the connection: it reads until failure, then redials and re-joins.
func (t *Transport) loop(conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	backoff := t.MinBackoff
	for {
		connectedAt := time.Now()
		err := t.readLoop(conn)

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()

		if t.ctx.Err() != nil {
			return
		}
		t.logger.Warn("realtime connection lost", "error", err)

		if time.Since(connectedAt) > resetThreshold {
			backoff = t.MinBackoff
		}

		conn = nil
		for conn == nil {
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > t.MaxBackoff {
				backoff = t.MaxBackoff
			}

			c, err := t.dial(t.ctx)
			if err != nil {
				t.logger.Warn("realtime redial failed", "error", err, "next_attempt_in", backoff)
				continue
			}
			conn = c
		}

		t.topicMu.Lock()
		t.mu.Lock()
		if t.ctx.Err() != nil {
			t.mu.Unlock()
			t.topicMu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		topics := make([]string, 0, len(t.feeds))
		for topic := range t.feeds {
			topics = append(topics, topic)
		}
		t.mu.Unlock()

		t.logger.Info("realtime connection restored", "topics", len(topics))
		for _, topic := range topics {
			if err := t.send(conn, realtime.Frame{Type: realtime.FrameJoin, Topic: topic, Ref: t.nextRef()}); err != nil {
				t.logger.Warn("realtime rejoin failed", "topic", topic, "error", err)
				break
			}
		}
		t.topicMu.Unlock()
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("realtime frame ignored", "error", err)
			continue
		}
		t.dispatch(frame)
	}
}

func (t *Transport) dispatch(frame realtime.Frame) {
	switch frame.Type {
	case realtime.FrameJoined:
		for _, f := range t.feedsFor(frame.Topic) {
			f.markReady()
		}
	case realtime.FrameChange:
		if frame.Event == nil {
			return
		}
		for _, f := range t.feedsFor(frame.Topic) {
			f.push(*frame.Event)
		}
	case realtime.FrameError:
		if frame.Topic == "" {
			t.logger.Warn("realtime error frame", "code", frame.Code, "error", frame.Error)
			return
		}
		joinErr := &Error{Kind: classify(0, frame.Code), Operation: "subscribe", Code: frame.Code, Message: frame.Error}
		t.mu.Lock()
		set := t.feeds[frame.Topic]
		delete(t.feeds, frame.Topic)
		t.mu.Unlock()
		for f := range set {
			f.finish(joinErr)
		}
	}
}

func (t *Transport) feedsFor(topic string) []*feed {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.feeds[topic]
	out := make([]*feed, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	return out
}

// remove drops f and leaves the topic when it was the last feed on it.
func (t *Transport) remove(f *feed) {
	t.topicMu.Lock()
	defer t.topicMu.Unlock()
	t.mu.Lock()
	set, ok := t.feeds[f.topic]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(set, f)
	last := len(set) == 0
	if last {
		delete(t.feeds, f.topic)
	}
	conn := t.conn
	t.mu.Unlock()

	if last && conn != nil {
		if err := t.send(conn, realtime.Frame{Type: realtime.FrameLeave, Topic: f.topic, Ref: t.nextRef()}); err != nil {
			t.logger.Debug("realtime leave write failed", "topic", f.topic, "error", err)
		}
	}
}

func (t *Transport) send(conn *websocket.Conn, frame realtime.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame.Encode())
}

func (t *Transport) nextRef() string {
	return strconv.FormatUint(t.refSeq.Add(1), 10)
}

// feed queues events without bound so a slow consumer never stalls the
// shared read loop, and hands them out in arrival order.
type feed struct {
	t     *Transport
	topic string

	ready     chan struct{}
	readyOnce sync.Once

	events chan domain.ChangeEvent
	signal chan struct{}

	mu    sync.Mutex
	queue []domain.ChangeEvent
	err   error

	done     chan struct{}
	doneOnce sync.Once
}

func newFeed(t *Transport, topic string) *feed {
	f := &feed{
		t:      t,
		topic:  topic,
		ready:  make(chan struct{}),
		events: make(chan domain.ChangeEvent),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go f.pump()
	return f
}

func (f *feed) Ready() <-chan struct{}            { return f.ready }
func (f *feed) Events() <-chan domain.ChangeEvent { return f.events }

func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *feed) Close() error {
	f.t.remove(f)
	f.finish(nil)
	return nil
}

func (f *feed) markReady() {
	f.readyOnce.Do(func() { close(f.ready) })
}

func (f *feed) push(ev domain.ChangeEvent) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	f.queue = append(f.queue, ev)
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *feed) finish(err error) {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.queue = nil
		close(f.done)
		f.mu.Unlock()
	})
}

func (f *feed) pump() {
	defer close(f.events)
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			select {
			case <-f.signal:
				continue
			case <-f.done:
				return
			}
		}
		ev := f.queue[0]
		f.queue[0] = domain.ChangeEvent{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}
