package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/ton"
	"github.com/xssnick/tonutils-go/address"
)

const (
	paymentValidFor = 10 * time.Minute
	commentPrefix   = "vp:"
)

var (
	minPaymentTON = decimal.RequireFromString("0.01")
	maxPaymentTON = decimal.NewFromInt(10000)
)

// TransferMessage is one message of a TON Connect sendTransaction request.
type TransferMessage struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // nanoTON
	Payload string `json:"payload,omitempty"`
}

type TransferRequest struct {
	ValidUntil int64             `json:"validUntil"`
	Messages   []TransferMessage `json:"messages"`
}

// PaymentRequest pairs the wallet transaction with the local record that tracks it.
type PaymentRequest struct {
	Record      models.PaymentRecord `json:"payment"`
	Transaction TransferRequest      `json:"transaction"`
}

// PaymentRequestBuilder builds TON Connect transfers to the platform address.
type PaymentRequestBuilder struct {
	dest    *address.Address
	testnet bool
	now     func() time.Time
}

func NewPaymentRequestBuilder(paymentAddress, network string) (*PaymentRequestBuilder, error) {
	dest, err := ton.ParseAddress(paymentAddress)
	if err != nil {
		return nil, fmt.Errorf("payment address: %w", err)
	}
	return &PaymentRequestBuilder{dest: dest, testnet: ton.IsTestnet(network), now: time.Now}, nil
}

func (b *PaymentRequestBuilder) Destination() string {
	return ton.Friendly(b.dest, b.testnet)
}

func (b *PaymentRequestBuilder) Build(amount decimal.Decimal) (*PaymentRequest, error) {
	if amount.LessThan(minPaymentTON) || amount.GreaterThan(maxPaymentTON) {
		return nil, &InputError{
			Field:  "amount_ton",
			Reason: fmt.Sprintf("must be between %s and %s", minPaymentTON, maxPaymentTON),
		}
	}
	nano, err := ton.ToNano(amount)
	if err != nil {
		return nil, &InputError{Field: "amount_ton", Reason: err.Error()}
	}

	id := uuid.NewString()
	comment := commentPrefix + id
	payload, err := ton.CommentPayload(comment)
	if err != nil {
		return nil, err
	}

	now := b.now()
	return &PaymentRequest{
		Record: models.PaymentRecord{
			ID:        id,
			Status:    models.PaymentStatusPending,
			AmountTON: amount,
			Comment:   comment,
			CreatedAt: now,
		},
		Transaction: TransferRequest{
			ValidUntil: now.Add(paymentValidFor).Unix(),
			Messages: []TransferMessage{{
				Address: b.Destination(),
				Amount:  nano,
				Payload: payload,
			}},
		},
	}, nil
}
