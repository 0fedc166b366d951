package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viral-platform/miniapp/internal/models"
)

var ErrNotFound = errors.New("not found")

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// --- Proof Payloads (nonce) ---

func (r *WalletRepo) CreateProofPayload(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*models.TonProofPayload, error) {
	p := &models.TonProofPayload{
		Payload: generateNonce(32),
		UserID:  &userID,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO ton_proof_payloads (payload, user_id, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		RETURNING id, created_at, expires_at
	`, p.Payload, userID, ttl.Seconds()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumeProofPayload marks the nonce used. Only the user it was issued to
// can consume it, and only once.
func (r *WalletRepo) ConsumeProofPayload(ctx context.Context, userID uuid.UUID, payload string) (*models.TonProofPayload, error) {
	var p models.TonProofPayload
	err := r.pool.QueryRow(ctx, `
		UPDATE ton_proof_payloads
		SET used = true
		WHERE payload = $1 AND user_id = $2 AND used = false AND expires_at > now()
		RETURNING id, payload, user_id, created_at, expires_at, used
	`, payload, userID).Scan(&p.ID, &p.Payload, &p.UserID, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteExpiredPayloads removes nonces that can no longer be consumed.
func (r *WalletRepo) DeleteExpiredPayloads(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ton_proof_payloads WHERE used OR expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- User Wallets ---

// ReplaceActiveWallet deactivates the user's wallets and stores w as the
// single active one, in one transaction.
func (r *WalletRepo) ReplaceActiveWallet(ctx context.Context, w *models.UserWallet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE user_wallets SET is_active = false, disconnected_at = now()
		WHERE user_id = $1 AND is_active = true
	`, w.UserID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO user_wallets (
			user_id, address, address_friendly, network, public_key,
			proof_timestamp, proof_domain, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (user_id, address) DO UPDATE SET
			address_friendly = EXCLUDED.address_friendly,
			network = EXCLUDED.network,
			public_key = EXCLUDED.public_key,
			proof_timestamp = EXCLUDED.proof_timestamp,
			proof_domain = EXCLUDED.proof_domain,
			is_active = true,
			disconnected_at = NULL,
			connected_at = now()
		RETURNING id, connected_at, is_active
	`, w.UserID, w.Address, w.AddressFriendly, w.Network, w.PublicKey,
		w.ProofTimestamp, w.ProofDomain,
	).Scan(&w.ID, &w.ConnectedAt, &w.IsActive)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *WalletRepo) DeactivateAllWallets(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_wallets SET is_active = false, disconnected_at = now()
		WHERE user_id = $1 AND is_active = true
	`, userID)
	return err
}

func (r *WalletRepo) GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	var w models.UserWallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, address, address_friendly, network, public_key,
		       proof_timestamp, proof_domain, connected_at, disconnected_at, is_active
		FROM user_wallets
		WHERE user_id = $1 AND is_active = true
		ORDER BY connected_at DESC LIMIT 1
	`, userID).Scan(
		&w.ID, &w.UserID, &w.Address, &w.AddressFriendly, &w.Network, &w.PublicKey,
		&w.ProofTimestamp, &w.ProofDomain, &w.ConnectedAt, &w.DisconnectedAt, &w.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
