package events

import (
	"context"
	"time"
)

// Stream is the redis channel all mini-app events go through.
const Stream = "miniapp:events"

// Event types
const (
	EventPaymentConfirmed = "payment_confirmed"
	EventPriceUpdated     = "price_updated"
	EventWalletChanged    = "wallet_changed"
)

// Event is delivered to websocket clients. TelegramUserID 0 means broadcast.
type Event struct {
	Type           string         `json:"type"`
	TelegramUserID int64          `json:"telegram_user_id,omitempty"`
	Payload        map[string]any `json:"payload"`
	At             time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
