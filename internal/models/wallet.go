package models

import (
	"time"

	"github.com/google/uuid"
)

type UserWallet struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Address         string     `json:"address"`          // raw: 0:<hex>
	AddressFriendly string     `json:"address_friendly"` // UQ.../EQ...
	Network         string     `json:"network"`
	PublicKey       string     `json:"public_key"`
	ProofTimestamp  int64      `json:"-"`
	ProofDomain     string     `json:"-"`
	ConnectedAt     time.Time  `json:"connected_at"`
	DisconnectedAt  *time.Time `json:"disconnected_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

type TonProofPayload struct {
	ID        uuid.UUID  `json:"id"`
	Payload   string     `json:"payload"`
	UserID    *uuid.UUID `json:"-"`
	CreatedAt time.Time  `json:"-"`
	ExpiresAt time.Time  `json:"-"`
	Used      bool       `json:"-"`
}
