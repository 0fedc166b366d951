package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/auth"
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/models"
	"go.uber.org/zap"
)

// UserStore is satisfied by *repositories.UserRepo.
type UserStore interface {
	UpsertByTelegramID(ctx context.Context, u *models.User) (*models.User, error)
}

type AuthHandler struct {
	users UserStore
	cfg   *config.Config
	now   func() time.Time
	log   *zap.Logger
}

func NewAuthHandler(users UserStore, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg, now: time.Now, log: log}
}

// TelegramAuth обменивает initData на JWT.
// POST /auth/telegram
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	var req dto.AuthTelegramRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.InitData == "" {
		return fail(c, fiber.StatusBadRequest, "init_data is required")
	}

	data, err := auth.ParseInitData(req.InitData, h.cfg.WebAppSecret, h.cfg.InitDataMaxAge, h.now())
	if err != nil {
		h.log.Debug("telegram auth validation failed", zap.Error(err))
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}

	tgUser := data.User
	u := &models.User{
		TelegramUserID: tgUser.ID,
		IsPremium:      tgUser.IsPremium,
		Username:       optional(tgUser.Username),
		FirstName:      optional(tgUser.FirstName),
		LanguageCode:   optional(tgUser.LanguageCode),
	}

	user, err := h.users.UpsertByTelegramID(c.Context(), u)
	if err != nil {
		h.log.Error("failed to upsert user", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.TelegramUserID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	return c.JSON(dto.AuthResponse{Token: token, User: user})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
