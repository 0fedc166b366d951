package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRecentPayments = 10

	// bound for a shared verification; it outlives the caller that started it
	verifyFlightTimeout = 30 * time.Second
)

// PaymentTracker owns the session-local, newest-first list of payments and
// reconciles it with the remote verification backend.
type PaymentTracker struct {
	verifier    verifier.RemoteVerifier
	function    string
	recentLimit int
	now         func() time.Time
	log         *zap.Logger

	mu          sync.RWMutex
	payments    []models.PaymentRecord // head = most recent
	loading     int
	closed      bool
	onConfirmed func(models.PaymentRecord)

	// one remote call per payment id at a time
	inflight singleflight.Group
}

func NewPaymentTracker(v verifier.RemoteVerifier, function string, recentLimit int, log *zap.Logger) *PaymentTracker {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentPayments
	}
	return &PaymentTracker{
		verifier:    v,
		function:    function,
		recentLimit: recentLimit,
		now:         time.Now,
		log:         log,
	}
}

// OnConfirmed registers a callback fired after a record transitions to
// confirmed. It runs outside the tracker lock.
func (t *PaymentTracker) OnConfirmed(fn func(models.PaymentRecord)) {
	t.mu.Lock()
	t.onConfirmed = fn
	t.mu.Unlock()
}

// AddPayment puts rec at the head of the list. Ids are unique: a duplicate is
// rejected with a StateError and the list is left untouched.
func (t *PaymentTracker) AddPayment(rec models.PaymentRecord) error {
	if rec.ID == "" {
		return &InputError{Field: "id", Reason: "required"}
	}
	if !rec.AmountTON.IsPositive() {
		return &InputError{Field: "amount_ton", Reason: "must be positive"}
	}
	if rec.Status == "" {
		rec.Status = models.PaymentStatusPending
	}
	if _, ok := models.ParsePaymentStatus(string(rec.Status)); !ok {
		return &InputError{Field: "status", Reason: "unknown status " + string(rec.Status)}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now()
	}
	if rec.Status != models.PaymentStatusConfirmed {
		rec.ConfirmedAt = nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &verifier.StateError{Op: "add payment", ID: rec.ID, Reason: "tracker closed"}
	}
	if t.indexOf(rec.ID) >= 0 {
		return &verifier.StateError{Op: "add payment", ID: rec.ID, Reason: "duplicate id"}
	}

	t.payments = append([]models.PaymentRecord{rec.Clone()}, t.payments...)
	return nil
}

// VerifyPayment asks the backend for the status of payment id and marks the
// local record confirmed when the backend says so. It reports whether the
// payment is confirmed. Errors are logged, never returned.
func (t *PaymentTracker) VerifyPayment(ctx context.Context, id string) bool {
	rec, ok := t.get(id)
	if !ok {
		t.log.Debug("verify skipped", zap.Error(&verifier.StateError{Op: "verify payment", ID: id, Reason: "unknown payment"}))
		return false
	}
	switch rec.Status {
	case models.PaymentStatusConfirmed:
		return true
	case models.PaymentStatusFailed:
		return false
	}

	// The flight is shared by every caller of this id, so it must not die
	// with whichever caller happened to start it.
	ch := t.inflight.DoChan(id, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyFlightTimeout)
		defer cancel()
		return t.verify(flightCtx, id), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (t *PaymentTracker) verify(ctx context.Context, id string) bool {
	// a previous flight for this id may have settled in the meantime
	if rec, ok := t.get(id); ok && rec.Status.IsTerminal() {
		return rec.Status == models.PaymentStatusConfirmed
	}
	if !t.beginLoading() {
		return false
	}
	defer t.endLoading()

	resp, err := verifier.VerifyPayment(ctx, t.verifier, t.function, verifier.PaymentRequest{PaymentID: id})
	if err != nil {
		t.log.Warn("payment verification failed", zap.String("payment_id", id), zap.Error(err))
		return false
	}
	if !resp.OK {
		t.log.Debug("payment verification not ok", zap.String("payment_id", id), zap.String("status", resp.Status))
		return false
	}
	if st, _ := models.ParsePaymentStatus(resp.Status); st != models.PaymentStatusConfirmed {
		return false
	}

	confirmed, err := t.confirm(id, resp.TxHash)
	if err != nil {
		t.log.Debug("payment confirmation not applied", zap.String("payment_id", id), zap.Error(err))
		return errors.Is(err, errAlreadyConfirmed)
	}

	t.log.Info("payment confirmed",
		zap.String("payment_id", id),
		zap.String("amount_ton", confirmed.AmountTON.String()),
	)

	t.mu.RLock()
	cb := t.onConfirmed
	t.mu.RUnlock()
	if cb != nil {
		cb(confirmed)
	}
	return true
}

var errAlreadyConfirmed = errors.New("already confirmed")

func (t *PaymentTracker) confirm(id string, txHash *string) (models.PaymentRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return models.PaymentRecord{}, &verifier.StateError{Op: "confirm payment", ID: id, Reason: "tracker closed"}
	}
	i := t.indexOf(id)
	if i < 0 {
		return models.PaymentRecord{}, &verifier.StateError{Op: "confirm payment", ID: id, Reason: "unknown payment"}
	}
	rec := &t.payments[i]
	if rec.Status == models.PaymentStatusConfirmed {
		return rec.Clone(), errAlreadyConfirmed
	}
	if !models.IsValidPaymentTransition(rec.Status, models.PaymentStatusConfirmed) {
		return models.PaymentRecord{}, &verifier.StateError{Op: "confirm payment", ID: id, Reason: "status " + string(rec.Status) + " is terminal"}
	}

	now := t.now()
	if now.Before(rec.CreatedAt) {
		now = rec.CreatedAt
	}
	rec.Status = models.PaymentStatusConfirmed
	rec.ConfirmedAt = &now
	if rec.TxHash == nil && txHash != nil && *txHash != "" {
		h := *txHash
		rec.TxHash = &h
	}
	return rec.Clone(), nil
}

// RecentPayments returns a copy of the first n records, most recent first.
// n <= 0 uses the configured default.
func (t *PaymentTracker) RecentPayments(n int) []models.PaymentRecord {
	if n <= 0 {
		n = t.recentLimit
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n > len(t.payments) {
		n = len(t.payments)
	}
	out := make([]models.PaymentRecord, n)
	for i := 0; i < n; i++ {
		out[i] = t.payments[i].Clone()
	}
	return out
}

// PendingIDs lists payments still awaiting confirmation that were created
// after createdAfter (zero time for all).
func (t *PaymentTracker) PendingIDs(createdAfter time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for _, p := range t.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.After(createdAfter) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (t *PaymentTracker) Get(id string) (models.PaymentRecord, bool) {
	return t.get(id)
}

func (t *PaymentTracker) IsLoading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loading > 0
}

func (t *PaymentTracker) State(n int) models.PaymentsState {
	return models.PaymentsState{Payments: t.RecentPayments(n), IsLoading: t.IsLoading()}
}

// Close stops later verification results from mutating the list.
func (t *PaymentTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *PaymentTracker) get(id string) (models.PaymentRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(id)
	if i < 0 {
		return models.PaymentRecord{}, false
	}
	return t.payments[i].Clone(), true
}

func (t *PaymentTracker) beginLoading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.loading++
	return true
}

func (t *PaymentTracker) endLoading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loading > 0 {
		t.loading--
	}
}

// indexOf must be called with mu held.
func (t *PaymentTracker) indexOf(id string) int {
	for i := range t.payments {
		if t.payments[i].ID == id {
			return i
		}
	}
	return -1
}
