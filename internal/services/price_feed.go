package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/verifier"
	"github.com/viral-platform/miniapp/internal/worker"
	"go.uber.org/zap"
)

const (
	DefaultPriceFallback = 3500
	DefaultPriceRefresh  = 5 * time.Minute
)

// PriceSource returns the current exchange rate.
type PriceSource interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// HTTPPriceSource reads a coingecko-style simple price endpoint:
// {"<coin>": {"<currency>": 1.23}}.
type HTTPPriceSource struct {
	endpoint   string
	coin       string
	currency   string
	httpClient *http.Client
}

func NewHTTPPriceSource(endpoint, coin, currency string, timeout time.Duration) *HTTPPriceSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPriceSource{
		endpoint:   endpoint,
		coin:       coin,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPPriceSource) FetchPrice(ctx context.Context) (float64, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return 0, fmt.Errorf("parse price url: %w", err)
	}
	q := u.Query()
	q.Set("ids", s.coin)
	q.Set("vs_currencies", s.currency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, &verifier.TransportError{Function: "price", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, &verifier.TransportError{Function: "price", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &verifier.TransportError{Function: "price", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	return parsePrice(raw, s.coin, s.currency)
}

// parsePrice treats the body as untrusted: anything but a positive number at
// body[coin][currency] is rejected.
func parsePrice(raw []byte, coin, currency string) (float64, error) {
	var body map[string]map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, &verifier.ValidationError{Reason: fmt.Sprintf("price body: %v", err)}
	}
	field := coin + "." + currency
	v, ok := body[coin][currency]
	if !ok {
		return 0, &verifier.ValidationError{Field: field, Reason: "missing"}
	}
	price, ok := v.(float64)
	if !ok {
		return 0, &verifier.ValidationError{Field: field, Reason: "not a number"}
	}
	if price <= 0 {
		return 0, &verifier.ValidationError{Field: field, Reason: "not positive"}
	}
	return price, nil
}

// PriceFeed caches the last known good price. A failed refresh keeps the
// previous value and records the error.
type PriceFeed struct {
	source   PriceSource
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	state    models.PriceState
	loading  int
	onUpdate func(models.PriceState)
}

func NewPriceFeed(source PriceSource, fallback float64, currency string, interval time.Duration, log *zap.Logger) *PriceFeed {
	if fallback <= 0 {
		fallback = DefaultPriceFallback
	}
	if interval <= 0 {
		interval = DefaultPriceRefresh
	}
	return &PriceFeed{
		source:   source,
		interval: interval,
		log:      log,
		state:    models.PriceState{Price: fallback, Currency: currency},
	}
}

// OnUpdate registers a callback fired after every successful refresh.
func (f *PriceFeed) OnUpdate(fn func(models.PriceState)) {
	f.mu.Lock()
	f.onUpdate = fn
	f.mu.Unlock()
}

// Start fetches once and then refreshes on every tick until the handle is
// stopped or ctx is done.
func (f *PriceFeed) Start(ctx context.Context) *worker.Handle {
	return worker.Every(ctx, "price-feed", f.interval, true, func(ctx context.Context) {
		f.Refetch(ctx)
	}, f.log)
}

// Refetch refreshes the price now and reports whether it succeeded.
func (f *PriceFeed) Refetch(ctx context.Context) bool {
	f.mu.Lock()
	f.loading++
	f.state.IsLoading = true
	f.mu.Unlock()

	price, err := f.source.FetchPrice(ctx)

	f.mu.Lock()
	f.loading--
	f.state.IsLoading = f.loading > 0
	if err != nil {
		msg := "Failed to fetch price"
		f.state.Error = &msg
		f.mu.Unlock()
		f.log.Warn("price refresh failed", zap.Error(err))
		return false
	}
	if price <= 0 {
		msg := "Invalid price"
		f.state.Error = &msg
		f.mu.Unlock()
		f.log.Warn("price source returned non-positive value", zap.Float64("price", price))
		return false
	}
	now := time.Now()
	f.state.Price = price
	f.state.Error = nil
	f.state.UpdatedAt = &now
	snapshot := f.snapshotLocked()
	cb := f.onUpdate
	f.mu.Unlock()

	f.log.Debug("price refreshed", zap.Float64("price", price))
	if cb != nil {
		cb(snapshot)
	}
	return true
}

func (f *PriceFeed) State() models.PriceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *PriceFeed) Price() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Price
}

func (f *PriceFeed) snapshotLocked() models.PriceState {
	s := f.state
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		s.UpdatedAt = &t
	}
	return s
}
