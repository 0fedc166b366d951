package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viral-platform/miniapp/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, telegram_user_id, username, first_name, language_code, is_premium, created_at, last_active_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TelegramUserID, &u.Username, &u.FirstName, &u.LanguageCode, &u.IsPremium, &u.CreatedAt, &u.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertByTelegramID records a login from the mini-app. Empty profile
// fields never overwrite known ones.
func (r *UserRepo) UpsertByTelegramID(ctx context.Context, u *models.User) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_user_id, username, first_name, language_code, is_premium)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			first_name = COALESCE(EXCLUDED.first_name, users.first_name),
			language_code = COALESCE(EXCLUDED.language_code, users.language_code),
			is_premium = EXCLUDED.is_premium,
			last_active_at = now()
		RETURNING `+userColumns,
		u.TelegramUserID, u.Username, u.FirstName, u.LanguageCode, u.IsPremium,
	))
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_user_id = $1`, telegramID))
}
