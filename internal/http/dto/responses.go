package dto

import (
	"github.com/viral-platform/miniapp/internal/models"
)

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	RequestID  string `json:"request_id,omitempty"`
	ShowPrompt bool   `json:"show_prompt,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type VerifyPaymentResponse struct {
	Confirmed bool                 `json:"confirmed"`
	Payment   models.PaymentRecord `json:"payment"`
}

type WalletResponse struct {
	Wallet *models.UserWallet       `json:"wallet"`
	Guard  models.WalletGuardState `json:"guard"`
}

type ModalResponse struct {
	Name       string `json:"name"`
	Suppressed bool   `json:"suppressed"`
}
