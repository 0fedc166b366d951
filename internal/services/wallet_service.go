package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/ton"
	"go.uber.org/zap"
)

const proofPayloadTTL = 5 * time.Minute

var (
	ErrInvalidPayload  = errors.New("invalid or expired proof payload")
	ErrNetworkMismatch = errors.New("wallet network mismatch")
	ErrInvalidProof    = errors.New("ton proof verification failed")
)

// WalletStore is the persistence WalletService needs. *repositories.WalletRepo
// implements it.
type WalletStore interface {
	CreateProofPayload(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*models.TonProofPayload, error)
	ConsumeProofPayload(ctx context.Context, userID uuid.UUID, payload string) (*models.TonProofPayload, error)
	ReplaceActiveWallet(ctx context.Context, w *models.UserWallet) error
	DeactivateAllWallets(ctx context.Context, userID uuid.UUID) error
	GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error)
}

// WalletService is the wallet-connection provider. It owns the per-user
// ConnectionState that WalletGuard reads.
type WalletService struct {
	store          WalletStore
	network        string
	allowedDomains []string
	now            func() time.Time
	log            *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*ConnectionState
}

func NewWalletService(store WalletStore, network string, allowedDomains []string, log *zap.Logger) *WalletService {
	return &WalletService{
		store:          store,
		network:        ton.NormalizeNetwork(network),
		allowedDomains: allowedDomains,
		now:            time.Now,
		log:            log,
		conns:          make(map[uuid.UUID]*ConnectionState),
	}
}

// Connection returns the connection holder of userID, creating an empty one.
func (s *WalletService) Connection(userID uuid.UUID) *ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[userID]
	if !ok {
		c = &ConnectionState{}
		s.conns[userID] = c
	}
	return c
}

// Forget drops the in-memory holder once no session uses it.
func (s *WalletService) Forget(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.conns, userID)
	s.mu.Unlock()
}

// LoadConnection seeds the connection holder from the active wallet in storage.
func (s *WalletService) LoadConnection(ctx context.Context, userID uuid.UUID) (*ConnectionState, error) {
	conn := s.Connection(userID)
	w, err := s.store.GetActiveWallet(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		conn.Clear()
		return conn, nil
	}
	if err != nil {
		return conn, fmt.Errorf("load active wallet: %w", err)
	}
	conn.Set(w.AddressFriendly)
	return conn, nil
}

// GeneratePayload создаёт nonce для TON Proof.
// Клиент передаёт его в tonconnect при подключении кошелька.
func (s *WalletService) GeneratePayload(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.store.CreateProofPayload(ctx, userID, proofPayloadTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p.Payload, nil
}

type ConnectWalletRequest struct {
	Address   string    `json:"address"`    // raw: "0:abc..."
	Network   string    `json:"network"`    // "-239" / "-3" or mainnet/testnet
	PublicKey string    `json:"public_key"` // hex
	Proof     ton.Proof `json:"proof"`
}

// ConnectWallet проверяет TON Proof и привязывает кошелёк к пользователю.
func (s *WalletService) ConnectWallet(ctx context.Context, userID uuid.UUID, req ConnectWalletRequest) (*models.UserWallet, error) {
	network := s.network
	if req.Network != "" {
		network = ton.NormalizeNetwork(req.Network)
	}
	if network != s.network {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrNetworkMismatch, s.network, network)
	}

	addr, err := ton.ParseAddress(req.Address)
	if err != nil {
		return nil, err
	}

	// nonce одноразовый, защита от replay
	if _, err := s.store.ConsumeProofPayload(ctx, userID, req.Proof.Payload); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidPayload
		}
		return nil, fmt.Errorf("consume proof payload: %w", err)
	}

	if err := ton.VerifyProof(req.PublicKey, addr, req.Proof, s.allowedDomains, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	wallet := &models.UserWallet{
		UserID:          userID,
		Address:         addr.StringRaw(),
		AddressFriendly: ton.Friendly(addr, ton.IsTestnet(network)),
		Network:         network,
		PublicKey:       req.PublicKey,
		ProofTimestamp:  req.Proof.Timestamp,
		ProofDomain:     req.Proof.Domain.Value,
	}
	if err := s.store.ReplaceActiveWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	s.Connection(userID).Set(wallet.AddressFriendly)

	s.log.Info("wallet connected",
		zap.String("user_id", userID.String()),
		zap.String("address", wallet.AddressFriendly),
	)
	return wallet, nil
}

// DisconnectWallet отключает активный кошелёк пользователя.
func (s *WalletService) DisconnectWallet(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeactivateAllWallets(ctx, userID); err != nil {
		return err
	}
	s.Connection(userID).Clear()
	s.log.Info("wallet disconnected", zap.String("user_id", userID.String()))
	return nil
}

func (s *WalletService) GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	return s.store.GetActiveWallet(ctx, userID)
}
