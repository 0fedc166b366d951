package models

import "time"

// SubscriptionState is the outcome of the latest channel subscription check.
type SubscriptionState struct {
	IsSubscribed bool    `json:"is_subscribed"`
	IsChecking   bool    `json:"is_checking"`
	Error        *string `json:"error"`
	Channel      string  `json:"channel,omitempty"`
}

type WalletGuardState struct {
	ShowPrompt bool   `json:"show_prompt"`
	Connected  bool   `json:"connected"`
	Address    string `json:"address,omitempty"`
}

// PriceState holds the last known good exchange rate.
type PriceState struct {
	Price     float64    `json:"price"`
	Currency  string     `json:"currency"`
	IsLoading bool       `json:"is_loading"`
	Error     *string    `json:"error"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type PaymentsState struct {
	Payments  []PaymentRecord `json:"payments"`
	IsLoading bool            `json:"is_loading"`
}
