package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/viral-platform/miniapp/internal/services"
)

// Session holds the per-user component instances: one payment list, one
// subscription state and one wallet guard per Telegram user.
type Session struct {
	TelegramUserID int64
	UserID         uuid.UUID
	CreatedAt      time.Time

	Payments     *services.PaymentTracker
	Subscription *services.SubscriptionGuard
	Wallet       *services.WalletGuard

	lastSeen atomic.Int64 // unix nanos
	closed   atomic.Bool
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// close installs the stale-result guard on every component. In-flight remote
// calls finish but their results are dropped.
func (s *Session) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Payments.Close()
	s.Subscription.Close()
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Info is the admin view of a live session.
type Info struct {
	TelegramUserID  int64     `json:"telegram_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeen        time.Time `json:"last_seen"`
	PendingPayments int       `json:"pending_payments"`
	WalletConnected bool      `json:"wallet_connected"`
	Subscribed      bool      `json:"subscribed"`
}

func (s *Session) info() Info {
	return Info{
		TelegramUserID:  s.TelegramUserID,
		CreatedAt:       s.CreatedAt,
		LastSeen:        s.LastSeen(),
		PendingPayments: len(s.Payments.PendingIDs(time.Time{})),
		WalletConnected: s.Wallet.State().Connected,
		Subscribed:      s.Subscription.State().IsSubscribed,
	}
}
