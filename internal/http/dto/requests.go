package dto

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

type CreatePaymentRequest struct {
	AmountTON string `json:"amount_ton"` // decimal string, e.g. "2.5"
}
