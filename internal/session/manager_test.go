package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/events"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
)

type walletStore struct {
	mu     sync.Mutex
	active map[uuid.UUID]*models.UserWallet
}

func (s *walletStore) CreateProofPayload(context.Context, uuid.UUID, time.Duration) (*models.TonProofPayload, error) {
	return &models.TonProofPayload{Payload: "nonce"}, nil
}

func (s *walletStore) ConsumeProofPayload(context.Context, uuid.UUID, string) (*models.TonProofPayload, error) {
	return nil, repositories.ErrNotFound
}

func (s *walletStore) ReplaceActiveWallet(_ context.Context, w *models.UserWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[w.UserID] = w
	return nil
}

func (s *walletStore) DeactivateAllWallets(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, userID)
	return nil
}

func (s *walletStore) GetActiveWallet(_ context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.active[userID]; ok {
		return w, nil
	}
	return nil, repositories.ErrNotFound
}

type testEnv struct {
	manager *Manager
	store   *walletStore
	calls   atomic.Int32
	events  []events.Event
	mu      sync.Mutex
}

func newEnv(t *testing.T, paymentStatus string) *testEnv {
	t.Helper()
	env := &testEnv{store: &walletStore{active: map[uuid.UUID]*models.UserWallet{}}}

	v := verifier.Func(func(_ context.Context, function string, _ any) (json.RawMessage, error) {
		env.calls.Add(1)
		if function == "verify-ton-payment" {
			return json.RawMessage(`{"ok":true,"status":"` + paymentStatus + `"}`), nil
		}
		return json.RawMessage(`{"isSubscribed":true}`), nil
	})

	bus := events.NewLocalBus()
	require.NoError(t, bus.Subscribe(context.Background(), events.Stream, func(e events.Event) {
		env.mu.Lock()
		env.events = append(env.events, e)
		env.mu.Unlock()
	}))

	log := zap.NewNop()
	cfg := &config.Config{
		SubscriptionFunction: "check-subscription",
		PaymentFunction:      "verify-ton-payment",
		RequiredChannel:      "viralplatform",
		RecentPaymentsLimit:  10,
		SessionIdleTimeout:   30 * time.Minute,
		PaymentPollInterval:  time.Second,
	}
	env.manager = NewManager(&AppContext{
		Config:    cfg,
		Log:       log,
		Verifier:  v,
		Wallets:   services.NewWalletService(env.store, "mainnet", nil, log),
		Publisher: bus,
	})
	return env
}

func (e *testEnv) eventTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func addPending(t *testing.T, s *Session, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.Payments.AddPayment(models.PaymentRecord{
		ID:        id,
		AmountTON: decimal.NewFromInt(1),
		CreatedAt: createdAt,
	}))
}

func TestManager_GetIsPerUser(t *testing.T) {
	env := newEnv(t, "confirmed")
	userA, userB := uuid.New(), uuid.New()
	env.store.active[userA] = &models.UserWallet{UserID: userA, AddressFriendly: "UQa"}

	a1, err := env.manager.Get(context.Background(), 1, userA)
	require.NoError(t, err)
	a2, err := env.manager.Get(context.Background(), 1, userA)
	require.NoError(t, err)
	b, err := env.manager.Get(context.Background(), 2, userB)
	require.NoError(t, err)

	require.Same(t, a1, a2)
	require.NotSame(t, a1, b)
	require.NotSame(t, a1.Payments, b.Payments)
	require.Equal(t, 2, env.manager.Len())

	require.True(t, a1.Wallet.State().Connected)
	require.False(t, b.Wallet.State().Connected)
}

func TestManager_ConfirmPublishesEvent(t *testing.T) {
	env := newEnv(t, "confirmed")
	s, err := env.manager.Get(context.Background(), 5, uuid.New())
	require.NoError(t, err)

	addPending(t, s, "p1", time.Now())
	require.True(t, s.Payments.VerifyPayment(context.Background(), "p1"))
	require.Equal(t, []string{events.EventPaymentConfirmed}, env.eventTypes())
	require.EqualValues(t, 5, env.events[0].TelegramUserID)
}

func TestManager_PollPayments(t *testing.T) {
	env := newEnv(t, "confirmed")
	s, err := env.manager.Get(context.Background(), 5, uuid.New())
	require.NoError(t, err)

	addPending(t, s, "old", time.Now().Add(-2*time.Hour))
	addPending(t, s, "fresh1", time.Now())
	addPending(t, s, "fresh2", time.Now())

	env.manager.PollPayments(context.Background())

	require.EqualValues(t, 2, env.calls.Load())
	require.Equal(t, []string{"old"}, s.Payments.PendingIDs(time.Time{}))
}

func TestManager_PollingHandleStops(t *testing.T) {
	env := newEnv(t, "pending")
	env.manager.app.Config.PaymentPollInterval = 10 * time.Millisecond
	s, err := env.manager.Get(context.Background(), 5, uuid.New())
	require.NoError(t, err)
	addPending(t, s, "p1", time.Now())

	h := env.manager.StartPaymentPolling(context.Background())
	require.Eventually(t, func() bool { return env.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	h.Stop()

	n := env.calls.Load()
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, n, env.calls.Load())
}

func TestManager_EvictIdle(t *testing.T) {
	env := newEnv(t, "confirmed")
	now := time.Now()
	env.manager.now = func() time.Time { return now }

	idle, err := env.manager.Get(context.Background(), 1, uuid.New())
	require.NoError(t, err)
	_, err = env.manager.Get(context.Background(), 2, uuid.New())
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, ok := env.manager.Lookup(2)
	require.True(t, ok)

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, env.manager.EvictIdle())
	require.True(t, idle.Closed())

	_, ok = env.manager.Lookup(1)
	require.False(t, ok)
	_, ok = env.manager.Lookup(2)
	require.True(t, ok)

	// a closed session ignores late results
	addErr := idle.Payments.AddPayment(models.PaymentRecord{ID: "x", AmountTON: decimal.NewFromInt(1)})
	require.True(t, verifier.IsState(addErr))
}

func TestManager_Stats(t *testing.T) {
	env := newEnv(t, "confirmed")
	s, err := env.manager.Get(context.Background(), 9, uuid.New())
	require.NoError(t, err)
	addPending(t, s, "p1", time.Now())
	require.True(t, s.Subscription.CheckSubscription(context.Background(), 9, ""))

	stats := env.manager.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, int64(9), stats[0].TelegramUserID)
	require.Equal(t, 1, stats[0].PendingPayments)
	require.True(t, stats[0].Subscribed)
	require.False(t, stats[0].WalletConnected)

	env.manager.Close()
	require.Zero(t, env.manager.Len())
	require.True(t, s.Closed())
}

func TestManager_EvictionRacingReopenKeepsWalletHolder(t *testing.T) {
	env := newEnv(t, "confirmed")
	user := uuid.New()

	old, err := env.manager.Get(context.Background(), 7, user)
	require.NoError(t, err)

	// first half of an eviction: the session leaves the map
	env.manager.mu.Lock()
	delete(env.manager.sessions, 7)
	env.manager.mu.Unlock()

	reopened, err := env.manager.Get(context.Background(), 7, user)
	require.NoError(t, err)
	require.NotSame(t, old, reopened)

	// second half runs after the user is back
	env.manager.closeSession(old)

	env.manager.app.Wallets.Connection(user).Set("UQconnected")
	require.True(t, reopened.Wallet.ExecuteWithWallet(nil))
	require.False(t, reopened.Wallet.ShowPrompt())
}

func TestManager_ReopenAfterEvictFollowsProvider(t *testing.T) {
	env := newEnv(t, "confirmed")
	user := uuid.New()
	env.store.active[user] = &models.UserWallet{UserID: user, AddressFriendly: "UQa"}

	_, err := env.manager.Get(context.Background(), 7, user)
	require.NoError(t, err)
	env.manager.Evict(7)

	s, err := env.manager.Get(context.Background(), 7, user)
	require.NoError(t, err)
	require.True(t, s.Wallet.State().Connected)

	require.NoError(t, env.manager.app.Wallets.DisconnectWallet(context.Background(), user))
	require.False(t, s.Wallet.ExecuteWithWallet(nil))
	require.True(t, s.Wallet.ShowPrompt())
}
