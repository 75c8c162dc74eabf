package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	obscontext "github.com/smallbiznis/guesthouse/internal/observability/context"
	"go.uber.org/zap"
)

const DefaultChannel = "guesthouse:changes"

// RedisBridge publishes changes to the local hub and to a redis channel, and
// relays changes published by other instances into the local hub.
type RedisBridge struct {
	client   *redis.Client
	hub      *Hub
	log      *zap.Logger
	channel  string
	instance string
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBridge(client *redis.Client, hub *Hub, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client:   client,
		hub:      hub,
		log:      log.Named("events.redis"),
		channel:  DefaultChannel,
		instance: ulid.Make().String(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (b *RedisBridge) Instance() string { return b.instance }

func (b *RedisBridge) Publish(ctx context.Context, changes ...Change) {
	for _, change := range changes {
		if !change.Valid() {
			continue
		}
		event := ChangeEvent{
			Change:        change,
			CorrelationID: obscontext.CorrelationIDFromContext(ctx),
			Origin:        b.instance,
			OccurredAt:    b.now(),
		}
		b.hub.Deliver(ctx, event)

		payload, err := json.Marshal(event)
		if err != nil {
			b.log.Warn("encode change event", zap.Error(err))
			continue
		}
		if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
			b.log.Warn("publish change event",
				zap.String("entity_type", string(change.EntityType)),
				zap.Int64("entity_id", change.EntityID.Int64()),
				zap.Error(err),
			)
		}
	}
}

// Start subscribes to the channel and relays remote events until Stop. An
// unreachable redis leaves the instance with local delivery only.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		b.log.Warn("change relay disabled", zap.String("channel", b.channel), zap.Error(err))
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.relay(runCtx, msg.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisBridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *RedisBridge) relay(ctx context.Context, payload string) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.log.Debug("drop malformed change event", zap.Error(err))
		return
	}
	if event.Origin == b.instance || !event.Valid() {
		return
	}
	b.hub.Deliver(ctx, event)
}

var _ Publisher = (*RedisBridge)(nil)
