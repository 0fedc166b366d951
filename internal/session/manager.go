package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viral-platform/miniapp/internal/events"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	reapInterval      = time.Minute
	pendingPollWindow = time.Hour
	pollConcurrency   = 8
	publishTimeout    = 5 * time.Second
)

// Manager owns all live sessions of the process.
type Manager struct {
	app *AppContext
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(app *AppContext) *Manager {
	return &Manager{
		app:      app,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the session of telegramID, creating it on first use. A new
// session starts with the wallet connection loaded from storage.
func (m *Manager) Get(ctx context.Context, telegramID int64, userID uuid.UUID) (*Session, error) {
	if s, ok := m.Lookup(telegramID); ok {
		return s, nil
	}

	conn, err := m.app.Wallets.LoadConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[telegramID]; ok {
		s.touch(m.now())
		return s, nil
	}
	// An eviction may have dropped the holder after it was loaded; the guard
	// must read the one the provider keeps updating.
	if cur := m.app.Wallets.Connection(userID); cur != conn {
		if addr, ok := conn.Account(); ok {
			cur.Set(addr)
		} else {
			cur.Clear()
		}
		conn = cur
	}
	s := m.newSession(telegramID, userID, conn)
	m.sessions[telegramID] = s
	m.app.Log.Debug("session opened", zap.Int64("telegram_user_id", telegramID))
	return s, nil
}

func (m *Manager) newSession(telegramID int64, userID uuid.UUID, conn services.WalletConnection) *Session {
	cfg := m.app.Config
	s := &Session{
		TelegramUserID: telegramID,
		UserID:         userID,
		CreatedAt:      m.now(),
		Payments:       services.NewPaymentTracker(m.app.Verifier, cfg.PaymentFunction, cfg.RecentPaymentsLimit, m.app.Log),
		Subscription:   services.NewSubscriptionGuard(m.app.Verifier, cfg.SubscriptionFunction, cfg.RequiredChannel, m.app.Log),
		Wallet:         services.NewWalletGuard(conn),
	}
	s.touch(s.CreatedAt)

	s.Payments.OnConfirmed(func(rec models.PaymentRecord) {
		m.publish(events.Event{
			Type:           events.EventPaymentConfirmed,
			TelegramUserID: telegramID,
			Payload:        map[string]any{"payment": rec},
		})
	})
	return s
}

// Lookup returns a live session without creating one.
func (m *Manager) Lookup(telegramID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[telegramID]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

func (m *Manager) Evict(telegramID int64) {
	m.mu.Lock()
	s, ok := m.sessions[telegramID]
	delete(m.sessions, telegramID)
	m.mu.Unlock()
	if ok {
		m.closeSession(s)
	}
}

// EvictIdle closes sessions not seen for longer than the idle timeout.
func (m *Manager) EvictIdle() int {
	cutoff := m.now().Add(-m.app.Config.SessionIdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.closeSession(s)
	}
	if len(idle) > 0 {
		m.app.Log.Info("idle sessions evicted", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// closeSession tears s down. The wallet holder is dropped only when no live
// session of the same user still reads it.
func (m *Manager) closeSession(s *Session) {
	s.close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, live := range m.sessions {
		if live.UserID == s.UserID {
			return
		}
	}
	m.app.Wallets.Forget(s.UserID)
}

func (m *Manager) StartReaper(ctx context.Context) *worker.Handle {
	return worker.Every(ctx, "session-reaper", reapInterval, false, func(context.Context) {
		m.EvictIdle()
	}, m.app.Log)
}

// PollPayments re-verifies recent pending payments of every live session.
func (m *Manager) PollPayments(ctx context.Context) {
	since := m.now().Add(-pendingPollWindow)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, s := range m.snapshot() {
		for _, id := range s.Payments.PendingIDs(since) {
			tracker, id := s.Payments, id
			g.Go(func() error {
				tracker.VerifyPayment(ctx, id)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (m *Manager) StartPaymentPolling(ctx context.Context) *worker.Handle {
	return worker.Every(ctx, "payment-poller", m.app.Config.PaymentPollInterval, false, m.PollPayments, m.app.Log)
}

// Stats lists live sessions, most recently seen first.
func (m *Manager) Stats() []Info {
	sessions := m.snapshot()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close evicts every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()
	for _, s := range all {
		m.closeSession(s)
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) publish(e events.Event) {
	if m.app.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.app.Publisher.Publish(ctx, events.Stream, e); err != nil {
		m.app.Log.Warn("failed to publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

// PublishPrice forwards price feed updates to websocket clients.
func (m *Manager) PublishPrice(st models.PriceState) {
	m.publish(events.Event{
		Type:    events.EventPriceUpdated,
		Payload: map[string]any{"price": st},
	})
}

// PublishWallet notifies the user's clients that the wallet changed.
func (m *Manager) PublishWallet(telegramID int64, st models.WalletGuardState) {
	m.publish(events.Event{
		Type:           events.EventWalletChanged,
		TelegramUserID: telegramID,
		Payload:        map[string]any{"wallet": st},
	})
}
