package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Valid state transitions: from -> []to.
// confirmed and failed are terminal.
var ValidPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusConfirmed, PaymentStatusFailed},
	PaymentStatusConfirmed: {},
	PaymentStatusFailed:    {},
}

func IsValidPaymentTransition(from, to PaymentStatus) bool {
	allowed, ok := ValidPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	allowed, ok := ValidPaymentTransitions[s]
	return ok && len(allowed) == 0
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	st := PaymentStatus(s)
	_, ok := ValidPaymentTransitions[st]
	return st, ok
}

// PaymentRecord is a session-local view of a TON payment. The remote
// verification backend stays the source of truth.
type PaymentRecord struct {
	ID          string          `json:"id"`
	Status      PaymentStatus   `json:"status"`
	AmountTON   decimal.Decimal `json:"amount_ton"`
	TxHash      *string         `json:"tx_hash,omitempty"`
	Comment     string          `json:"comment,omitempty"` // transfer memo
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// Clone returns a copy that shares no pointers with r.
func (r PaymentRecord) Clone() PaymentRecord {
	out := r
	if r.TxHash != nil {
		h := *r.TxHash
		out.TxHash = &h
	}
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		out.ConfirmedAt = &t
	}
	return out
}
