package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	obscontext "github.com/smallbiznis/guesthouse/internal/observability/context"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16

	// TopicAll receives every change regardless of entity type.
	TopicAll = "*"
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidTopic   = errors.New("invalid_topic")
)

// Hub fans change events out to in-process subscribers. Each topic keeps a
// short replay buffer; slow subscribers lose events instead of blocking the
// publisher.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
	now              func() time.Time
	metrics          *obsmetrics.Metrics
}

type stream struct {
	mu     sync.Mutex
	buffer []ChangeEvent
	subs   map[uint64]chan ChangeEvent
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan ChangeEvent
	once  sync.Once
}

func NewHub(metrics *obsmetrics.Metrics) *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
		now:              func() time.Time { return time.Now().UTC() },
		metrics:          metrics,
	}
}

// Publish stamps and delivers changes to local subscribers.
func (h *Hub) Publish(ctx context.Context, changes ...Change) {
	for _, change := range changes {
		if !change.Valid() {
			continue
		}
		h.Deliver(ctx, ChangeEvent{
			Change:        change,
			CorrelationID: obscontext.CorrelationIDFromContext(ctx),
			OccurredAt:    h.now(),
		})
	}
}

// Deliver hands an already stamped event to subscribers of its entity type
// and of TopicAll.
func (h *Hub) Deliver(ctx context.Context, event ChangeEvent) {
	if h == nil {
		return
	}
	for _, topic := range []string{string(event.EntityType), TopicAll} {
		h.deliver(ctx, topic, event)
	}
}

func (h *Hub) deliver(ctx context.Context, topic string, event ChangeEvent) {
	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan ChangeEvent, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			h.metrics.RecordEventDropped(ctx, string(event.EntityType))
		}
	}
}

// Subscribe registers for a topic and returns the events buffered so far.
func (h *Hub) Subscribe(topic string) (*Subscription, []ChangeEvent, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = TopicAll
	}
	if topic != TopicAll && !txlogdomain.EntityType(topic).Valid() {
		return nil, nil, ErrInvalidTopic
	}

	stream := h.ensureStream(topic)
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan ChangeEvent, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]ChangeEvent(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{hub: h, topic: topic, id: id, ch: ch}, buffer, nil
}

func (h *Hub) ensureStream(topic string) *stream {
	h.mu.RLock()
	current := h.streams[topic]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[topic]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan ChangeEvent)}
		h.streams[topic] = current
	}
	return current
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[topic] != stream {
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, topic)
	}
}

func (s *Subscription) Events() <-chan ChangeEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}

var _ Publisher = (*Hub)(nil)
