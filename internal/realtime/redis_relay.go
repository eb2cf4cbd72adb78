package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// relayEnvelope tags an event with the node that produced it so a node never
// re-delivers its own events.
type relayEnvelope struct {
	Node  string             `json:"node"`
	Event domain.ChangeEvent `json:"event"`
}

// RedisRelay mirrors hub events across server nodes over Redis Pub/Sub.
type RedisRelay struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	node       string
	hub        *Hub
	logger     logger.Logger

	mu      sync.Mutex
	running bool
}

// NewRedisRelay connects to redisURL and returns a relay bound to hub.
func NewRedisRelay(redisURL, channel, node string, hub *Hub, log logger.Logger) (*RedisRelay, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	relay := NewRedisRelayWithClient(client, channel, node, hub, log)
	relay.ownsClient = true
	return relay, nil
}

// NewRedisRelayWithClient wraps an existing client. The caller keeps ownership of it.
func NewRedisRelayWithClient(client *redis.Client, channel, node string, hub *Hub, log logger.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		node:    node,
		hub:     hub,
		logger:  log,
	}
}

// Publish sends a locally produced event to the other nodes.
func (r *RedisRelay) Publish(ctx context.Context, event domain.ChangeEvent) error {
	data, err := encodeEnvelope(r.node, event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run receives events from other nodes and delivers them to the local hub.
// It blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("relay already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.Info("redis relay subscribed", "channel", r.channel, "node", r.node)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		r.logger.Warn("dropping malformed relay payload", "error", err)
		return
	}
	if env.Node == r.node {
		return
	}
	r.hub.Deliver(env.Event)
}

// Close releases the client if the relay created it.
func (r *RedisRelay) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

func encodeEnvelope(node string, event domain.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(relayEnvelope{Node: node, Event: event})
	if err != nil {
		return nil, fmt.Errorf("encode relay envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(payload []byte) (relayEnvelope, error) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Event.ConversationID == "" {
		return env, errors.New("relay event has no conversation id")
	}
	return env, nil
}
