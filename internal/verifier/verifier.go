package verifier

import (
	"context"
	"encoding/json"
	"fmt"
)

// RemoteVerifier invokes a named backend function with a JSON payload.
// Implementations must be safe for concurrent use.
type RemoteVerifier interface {
	Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error)
}

// Func adapts a plain function to RemoteVerifier.
type Func func(ctx context.Context, function string, payload any) (json.RawMessage, error)

func (f Func) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	return f(ctx, function, payload)
}

type SubscriptionRequest struct {
	Identity int64  `json:"identity"`
	Channel  string `json:"channel"`
}

type SubscriptionResponse struct {
	IsSubscribed bool `json:"isSubscribed"`
}

type PaymentRequest struct {
	PaymentID string `json:"paymentId"`
}

type PaymentResponse struct {
	OK     bool    `json:"ok"`
	Status string  `json:"status"`
	TxHash *string `json:"txHash,omitempty"`
}

// CheckSubscription calls the subscription function. A missing or
// non-boolean isSubscribed field is read as false.
func CheckSubscription(ctx context.Context, v RemoteVerifier, function string, req SubscriptionRequest) (bool, error) {
	raw, err := v.Invoke(ctx, function, req)
	if err != nil {
		return false, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return false, &ValidationError{Reason: fmt.Sprintf("expected JSON object: %v", err)}
	}
	subscribed, _ := body["isSubscribed"].(bool)
	return subscribed, nil
}

// VerifyPayment calls the payment verification function.
func VerifyPayment(ctx context.Context, v RemoteVerifier, function string, req PaymentRequest) (*PaymentResponse, error) {
	raw, err := v.Invoke(ctx, function, req)
	if err != nil {
		return nil, err
	}
	var resp PaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("expected payment status object: %v", err)}
	}
	return &resp, nil
}
