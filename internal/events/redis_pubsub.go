package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// RedisBus fans events out to every API instance over redis pub/sub, so a
// payment confirmed on one replica reaches sockets held by another.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, stream string, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, stream, data).Err()
}

// Subscribe delivers events from stream to handler until ctx is done.
// It returns once the subscription is confirmed by redis.
func (b *RedisBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := b.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	ch := pubsub.Channel(redis.WithChannelSize(subscriberBuffer))

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, err := decodeEvent(msg.Payload)
				if err != nil {
					b.log.Warn("dropping event", zap.String("stream", stream), zap.Error(err))
					continue
				}
				b.deliver(handler, event)
			}
		}
	}()

	return nil
}

func (b *RedisBus) deliver(handler func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.String("type", event.Type), zap.Any("panic", r))
		}
	}()
	handler(event)
}

func decodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	switch event.Type {
	case EventPaymentConfirmed, EventPriceUpdated, EventWalletChanged:
		return event, nil
	default:
		return Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
}
