package realtime

import (
	"context"
	"sync"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

// Subscriber is anything the hub can push encoded frames to.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Relay forwards locally published events to other nodes.
type Relay interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// Hub fans change events out to the subscribers joined to each topic.
// One subscriber may hold many topics; the topics are multiplexed over its
// single connection.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[string]Subscriber // topic -> subscriberID -> subscriber
	membership map[string]map[string]struct{}   // subscriberID -> topics
	relay      Relay
	logger     logger.Logger
}

// NewHub constructs an empty hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[string]Subscriber),
		membership: make(map[string]map[string]struct{}),
		logger:     log,
	}
}

// SetRelay installs the cross-node relay. Call before serving traffic.
func (h *Hub) SetRelay(relay Relay) {
	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
}

// Join adds the subscriber to topic. Joining twice is harmless.
func (h *Hub) Join(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.topics[topic]
	if members == nil {
		members = make(map[string]Subscriber)
		h.topics[topic] = members
	}
	members[sub.ID()] = sub

	joined := h.membership[sub.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		h.membership[sub.ID()] = joined
	}
	joined[topic] = struct{}{}
}

// Leave removes the subscriber from topic.
func (h *Hub) Leave(topic string, sub Subscriber) {
	h.mu.Lock()
	h.leaveLocked(topic, sub.ID())
	h.mu.Unlock()
}

// Detach removes the subscriber from every topic.
func (h *Hub) Detach(sub Subscriber) {
	h.mu.Lock()
	for topic := range h.membership[sub.ID()] {
		h.leaveLocked(topic, sub.ID())
	}
	delete(h.membership, sub.ID())
	h.mu.Unlock()
}

// Topics returns the topics the subscriber currently holds.
func (h *Hub) Topics(sub Subscriber) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.membership[sub.ID()]))
	for topic := range h.membership[sub.ID()] {
		out = append(out, topic)
	}
	return out
}

// Publish delivers the event locally and hands it to the relay, if any.
func (h *Hub) Publish(ctx context.Context, event domain.ChangeEvent) int {
	delivered := h.Deliver(event)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		if err := relay.Publish(ctx, event); err != nil {
			h.logger.Warn("relay publish failed", "conversation_id", event.ConversationID, "error", err)
		}
	}
	return delivered
}

// Deliver pushes the event to local subscribers only. A subscriber joined to
// both the conversation topic and the list topic receives one frame per topic.
// Sends happen outside the hub lock so a stuck subscriber cannot hold up
// joins, leaves or other publishers.
func (h *Hub) Deliver(event domain.ChangeEvent) int {
	type target struct {
		payload []byte
		subs    []Subscriber
	}

	h.mu.RLock()
	var targets []target
	for _, topic := range event.Topics() {
		members := h.topics[topic]
		if len(members) == 0 {
			continue
		}
		ev := event
		tg := target{
			payload: Frame{Type: FrameChange, Topic: topic, Event: &ev}.Encode(),
			subs:    make([]Subscriber, 0, len(members)),
		}
		for _, sub := range members {
			tg.subs = append(tg.subs, sub)
		}
		targets = append(targets, tg)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, tg := range targets {
		for _, sub := range tg.subs {
			if err := sub.Send(tg.payload); err == nil {
				delivered++
			}
		}
	}
	return delivered
}

// Subscribers counts members of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) leaveLocked(topic, subID string) {
	members := h.topics[topic]
	if members != nil {
		delete(members, subID)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	if joined, ok := h.membership[subID]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(h.membership, subID)
		}
	}
}
