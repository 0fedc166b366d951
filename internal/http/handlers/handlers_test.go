package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viral-platform/miniapp/internal/auth"
	"github.com/viral-platform/miniapp/internal/channelpreview"
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/events"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/middleware"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/session"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
)

const (
	testSecret      = "test-jwt-secret"
	testBotToken    = "123456:test-bot-token"
	testPaymentAddr = "0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	testTelegramID  = int64(777)
)

type walletStore struct {
	mu     sync.Mutex
	active map[uuid.UUID]*models.UserWallet
}

func (s *walletStore) CreateProofPayload(_ context.Context, userID uuid.UUID, ttl time.Duration) (*models.TonProofPayload, error) {
	return &models.TonProofPayload{Payload: "nonce-" + userID.String()[:8], ExpiresAt: time.Now().Add(ttl)}, nil
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

type priceSource struct {
	price float64
	err   error
}

func (p priceSource) FetchPrice(context.Context) (float64, error) {
	return p.price, p.err
}

type testServer struct {
	app      *fiber.App
	store    *walletStore
	sessions *session.Manager
	userID   uuid.UUID
	token    string
	verifies atomic.Int32
}

func newTestServer(t *testing.T, paymentStatus string) *testServer {
	t.Helper()
	log := zap.NewNop()
	cfg := &config.Config{
		JWTSecret:            testSecret,
		JWTExpiration:        time.Hour,
		SubscriptionFunction: "check-subscription",
		PaymentFunction:      "verify-ton-payment",
		RequiredChannel:      "viralplatform",
		RecentPaymentsLimit:  10,
		AdminTelegramIDs:     []int64{1},
	}

	ts := &testServer{
		store:  &walletStore{active: map[uuid.UUID]*models.UserWallet{}},
		userID: uuid.New(),
	}

	v := verifier.Func(func(_ context.Context, function string, _ any) (json.RawMessage, error) {
		if function == cfg.PaymentFunction {
			ts.verifies.Add(1)
			return json.RawMessage(`{"ok":true,"status":"` + paymentStatus + `","txHash":"abc"}`), nil
		}
		return json.RawMessage(`{"isSubscribed":true}`), nil
	})

	requests, err := services.NewPaymentRequestBuilder(testPaymentAddr, "mainnet")
	require.NoError(t, err)

	prices := services.NewPriceFeed(priceSource{price: 2.5}, 0, "usd", time.Minute, log)
	wallets := services.NewWalletService(ts.store, "mainnet", nil, log)
	modals := services.NewModalSuppression(repositories.NewMemoryKV(), 24*time.Hour, log)
	ts.sessions = session.NewManager(&session.AppContext{
		Config:    cfg,
		Log:       log,
		Verifier:  v,
		Wallets:   wallets,
		Publisher: events.NewLocalBus(),
	})
	t.Cleanup(ts.sessions.Close)

	ts.token, err = auth.GenerateJWT(testSecret, ts.userID, testTelegramID, time.Hour)
	require.NoError(t, err)

	ts.app = fiber.New()
	ts.app.Use(middleware.RequestIDMiddleware())
	ts.app.Get("/price", NewPriceHandler(prices).GetPrice)

	me := ts.app.Group("/me", middleware.AuthMiddleware(testSecret, log))
	ph := NewPaymentHandler(ts.sessions, requests, log)
	me.Get("/payments", ph.ListPayments)
	me.Post("/payments", ph.CreatePayment)
	me.Post("/payments/:id/verify", ph.VerifyPayment)
	wh := NewWalletHandler(wallets, ts.sessions, log)
	me.Get("/wallet", wh.GetWallet)
	me.Delete("/wallet", wh.DisconnectWallet)
	me.Post("/wallet/proof-payload", wh.GeneratePayload)
	me.Post("/wallet/connect", wh.ConnectWallet)
	me.Post("/wallet/prompt/dismiss", wh.DismissPrompt)
	me.Get("/subscription", NewSubscriptionHandler(ts.sessions, log).CheckSubscription)
	mh := NewModalHandler(modals, log)
	me.Get("/modals/:name", mh.GetModal)
	me.Post("/modals/:name/suppress", mh.Suppress)
	me.Delete("/modals/:name", mh.Clear)
	me.Get("/admin/sessions", middleware.AdminMiddleware(cfg.IsAdmin), NewAdminHandler(ts.sessions).ListSessions)

	return ts
}

func (ts *testServer) connectWallet() {
	ts.store.active[ts.userID] = &models.UserWallet{
		UserID:          ts.userID,
		Address:         testPaymentAddr,
		AddressFriendly: "UQ-test-wallet",
		Network:         "mainnet",
		IsActive:        true,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+ts.token)

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestCreatePayment_WithoutWalletRaisesPrompt(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, body := ts.do(t, http.MethodPost, "/me/payments", `{"amount_ton":"2.5"}`)
	require.Equal(t, http.StatusConflict, status)

	var errResp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	require.True(t, errResp.ShowPrompt)
	require.NotEmpty(t, errResp.RequestID)

	status, body = ts.do(t, http.MethodGet, "/me/payments", "")
	require.Equal(t, http.StatusOK, status)
	var list models.PaymentsState
	require.NoError(t, json.Unmarshal(body, &list))
	require.Empty(t, list.Payments)

	status, body = ts.do(t, http.MethodGet, "/me/wallet", "")
	require.Equal(t, http.StatusOK, status)
	var wallet dto.WalletResponse
	require.NoError(t, json.Unmarshal(body, &wallet))
	require.Nil(t, wallet.Wallet)
	require.True(t, wallet.Guard.ShowPrompt)
	require.False(t, wallet.Guard.Connected)

	status, body = ts.do(t, http.MethodPost, "/me/wallet/prompt/dismiss", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"show_prompt":false`)
}

func TestCreateAndVerifyPayment(t *testing.T) {
	ts := newTestServer(t, "confirmed")
	ts.connectWallet()

	status, body := ts.do(t, http.MethodPost, "/me/payments", `{"amount_ton":"2.5"}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created services.PaymentRequest
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, models.PaymentStatusPending, created.Record.Status)
	require.Len(t, created.Transaction.Messages, 1)
	require.Equal(t, "2500000000", created.Transaction.Messages[0].Amount)

	status, body = ts.do(t, http.MethodPost, "/me/payments/"+created.Record.ID+"/verify", "")
	require.Equal(t, http.StatusOK, status)

	var verified dto.VerifyPaymentResponse
	require.NoError(t, json.Unmarshal(body, &verified))
	require.True(t, verified.Confirmed)
	require.Equal(t, models.PaymentStatusConfirmed, verified.Payment.Status)
	require.NotNil(t, verified.Payment.ConfirmedAt)
	require.EqualValues(t, 1, ts.verifies.Load())

	// confirmed payments are answered locally
	status, _ = ts.do(t, http.MethodPost, "/me/payments/"+created.Record.ID+"/verify", "")
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, ts.verifies.Load())
}

func TestCreatePayment_BadInput(t *testing.T) {
	ts := newTestServer(t, "confirmed")
	ts.connectWallet()

	tests := []struct {
		name string
		body string
	}{
		{"not a number", `{"amount_ton":"lots"}`},
		{"zero", `{"amount_ton":"0"}`},
		{"above maximum", `{"amount_ton":"100000"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/me/payments", tt.body)
			require.Equal(t, http.StatusBadRequest, status)

			var errResp dto.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			require.Contains(t, errResp.Error, "amount_ton")
			require.NotContains(t, errResp.Error, "response")
		})
	}

	_, body := ts.do(t, http.MethodGet, "/me/payments", "")
	var list models.PaymentsState
	require.NoError(t, json.Unmarshal(body, &list))
	require.Empty(t, list.Payments)
}

func TestVerifyPayment_UnknownID(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, _ := ts.do(t, http.MethodPost, "/me/payments/nope/verify", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Zero(t, ts.verifies.Load())
}

func TestVerifyPayment_StillPending(t *testing.T) {
	ts := newTestServer(t, "pending")
	ts.connectWallet()

	_, body := ts.do(t, http.MethodPost, "/me/payments", `{"amount_ton":"1"}`)
	var created services.PaymentRequest
	require.NoError(t, json.Unmarshal(body, &created))

	status, body := ts.do(t, http.MethodPost, "/me/payments/"+created.Record.ID+"/verify", "")
	require.Equal(t, http.StatusOK, status)

	var verified dto.VerifyPaymentResponse
	require.NoError(t, json.Unmarshal(body, &verified))
	require.False(t, verified.Confirmed)
	require.Equal(t, models.PaymentStatusPending, verified.Payment.Status)
	require.Nil(t, verified.Payment.ConfirmedAt)
}

func TestDisconnectWallet(t *testing.T) {
	ts := newTestServer(t, "confirmed")
	ts.connectWallet()

	_, body := ts.do(t, http.MethodGet, "/me/wallet", "")
	var before dto.WalletResponse
	require.NoError(t, json.Unmarshal(body, &before))
	require.True(t, before.Guard.Connected)
	require.Equal(t, "UQ-test-wallet", before.Guard.Address)

	status, _ := ts.do(t, http.MethodDelete, "/me/wallet", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodPost, "/me/payments", `{"amount_ton":"1"}`)
	require.Equal(t, http.StatusConflict, status)
}

func TestConnectWallet_Rejected(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, _ := ts.do(t, http.MethodPost, "/me/wallet/connect", `{"address":"0:abc"}`)
	require.Equal(t, http.StatusBadRequest, status)

	body := `{"address":"` + testPaymentAddr + `","network":"-239","public_key":"aa","proof":{"signature":"c2ln","payload":"unknown"}}`
	status, resp := ts.do(t, http.MethodPost, "/me/wallet/connect", body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(resp), services.ErrInvalidPayload.Error())
}

func TestGeneratePayload(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, body := ts.do(t, http.MethodPost, "/me/wallet/proof-payload", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"payload":"nonce-`)
}

func TestCheckSubscription(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, body := ts.do(t, http.MethodGet, "/me/subscription?channel=other", "")
	require.Equal(t, http.StatusOK, status)

	var st models.SubscriptionState
	require.NoError(t, json.Unmarshal(body, &st))
	require.True(t, st.IsSubscribed)
	require.False(t, st.IsChecking)
	require.Nil(t, st.Error)
}

func TestModals(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	get := func() dto.ModalResponse {
		status, body := ts.do(t, http.MethodGet, "/me/modals/welcome", "")
		require.Equal(t, http.StatusOK, status)
		var m dto.ModalResponse
		require.NoError(t, json.Unmarshal(body, &m))
		return m
	}

	require.False(t, get().Suppressed)

	status, _ := ts.do(t, http.MethodPost, "/me/modals/welcome/suppress", "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, get().Suppressed)

	status, _ = ts.do(t, http.MethodDelete, "/me/modals/welcome", "")
	require.Equal(t, http.StatusOK, status)
	require.False(t, get().Suppressed)

	status, _ = ts.do(t, http.MethodGet, "/me/modals/Bad%20Name", "")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestAdminSessions_Forbidden(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, _ := ts.do(t, http.MethodGet, "/me/admin/sessions", "")
	require.Equal(t, http.StatusForbidden, status)

	var err error
	ts.token, err = auth.GenerateJWT(testSecret, uuid.New(), 1, time.Hour)
	require.NoError(t, err)

	status, body := ts.do(t, http.MethodGet, "/me/admin/sessions", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"count":`)
}

func TestGetPrice_Fallback(t *testing.T) {
	ts := newTestServer(t, "confirmed")

	status, body := ts.do(t, http.MethodGet, "/price", "")
	require.Equal(t, http.StatusOK, status)

	var st models.PriceState
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, 3500.0, st.Price)
	require.Nil(t, st.Error)
}

func TestPriceRefetch(t *testing.T) {
	log := zap.NewNop()
	app := fiber.New()

	failing := NewPriceHandler(services.NewPriceFeed(priceSource{err: errors.New("down")}, 0, "usd", time.Minute, log))
	app.Post("/failing", failing.Refetch)
	working := NewPriceHandler(services.NewPriceFeed(priceSource{price: 2.75}, 0, "usd", time.Minute, log))
	app.Post("/working", working.Refetch)

	tests := []struct {
		path      string
		wantPrice float64
		wantError bool
	}{
		{"/failing", 3500, true},
		{"/working", 2.75, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodPost, tt.path, nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			var st models.PriceState
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
			assert.Equal(t, tt.wantPrice, st.Price)
			assert.Equal(t, tt.wantError, st.Error != nil)
			assert.False(t, st.IsLoading)
		})
	}
}

type previewFetcher func(username string) (*channelpreview.Preview, error)

func (f previewFetcher) FetchPreview(_ context.Context, username string) (*channelpreview.Preview, error) {
	return f(username)
}

func TestGetPreview_StatusMapping(t *testing.T) {
	app := fiber.New()
	h := NewChannelHandler(previewFetcher(func(username string) (*channelpreview.Preview, error) {
		switch username {
		case "bad":
			return nil, channelpreview.ErrInvalidUsername
		case "missing":
			return nil, channelpreview.ErrNotFound
		case "broken":
			return nil, errors.New("connection reset")
		}
		return &channelpreview.Preview{Username: username, Title: "Viral"}, nil
	}), zap.NewNop())
	app.Get("/channels/:username/preview", h.GetPreview)

	tests := []struct {
		username string
		want     int
	}{
		{"viralplatform", http.StatusOK},
		{"bad", http.StatusBadRequest},
		{"missing", http.StatusNotFound},
		{"broken", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/channels/"+tt.username+"/preview", nil), -1)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

type userStore struct {
	got *models.User
}

func (s *userStore) UpsertByTelegramID(_ context.Context, u *models.User) (*models.User, error) {
	s.got = u
	out := *u
	out.ID = uuid.New()
	return &out, nil
}

func signInitData(botToken string, vals url.Values) string {
	var pairs []string
	for k := range vals {
		pairs = append(pairs, k+"="+vals.Get(k))
	}
	sort.Strings(pairs)

	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	secret := mac.Sum(nil)

	mac = hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	vals.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return vals.Encode()
}

func TestTelegramAuth(t *testing.T) {
	users := &userStore{}
	cfg := &config.Config{
		WebAppSecret:   testBotToken,
		JWTSecret:      testSecret,
		JWTExpiration:  time.Hour,
		InitDataMaxAge: time.Hour,
	}
	h := NewAuthHandler(users, cfg, zap.NewNop())
	app := fiber.New()
	app.Post("/auth/telegram", h.TelegramAuth)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/auth/telegram", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	vals := url.Values{}
	vals.Set("auth_date", strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10))
	vals.Set("user", `{"id":4242,"first_name":"Ann","username":"ann","is_premium":true}`)
	initData := signInitData(testBotToken, vals)

	reqBody, err := json.Marshal(dto.AuthTelegramRequest{InitData: initData})
	require.NoError(t, err)
	resp := post(string(reqBody))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	claims, err := auth.ParseJWT(testSecret, out.Token)
	require.NoError(t, err)
	require.Equal(t, int64(4242), claims.TelegramUserID)

	require.NotNil(t, users.got)
	require.True(t, users.got.IsPremium)
	require.Equal(t, "ann", *users.got.Username)
	require.Nil(t, users.got.LanguageCode)

	tampered := strings.Replace(initData, "ann", "bob", 1)
	reqBody, err = json.Marshal(dto.AuthTelegramRequest{InitData: tampered})
	require.NoError(t, err)
	bad := post(string(reqBody))
	bad.Body.Close()
	require.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	empty := post(`{}`)
	empty.Body.Close()
	require.Equal(t, http.StatusBadRequest, empty.StatusCode)
}
