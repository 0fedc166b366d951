package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/viral-platform/miniapp/internal/auth"
	"go.uber.org/zap"
)

const (
	CtxUserID         = "user_id"
	CtxTelegramUserID = "telegram_user_id"
)

// AuthMiddleware accepts "Authorization: Bearer <jwt>" issued by /auth/telegram.
func AuthMiddleware(jwtSecret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return abort(c, fiber.StatusUnauthorized, "missing authorization header")
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			return abort(c, fiber.StatusUnauthorized, "invalid authorization format")
		}

		claims, err := auth.ParseJWT(jwtSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return abort(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxTelegramUserID, claims.TelegramUserID)

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetTelegramUserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(CtxTelegramUserID).(int64)
	return id
}

// AdminMiddleware lets through only telegram ids accepted by isAdmin.
func AdminMiddleware(isAdmin func(telegramID int64) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isAdmin(GetTelegramUserID(c)) {
			return abort(c, fiber.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}

func abort(c *fiber.Ctx, status int, msg string) error {
	reqID, _ := c.Locals(CtxRequestID).(string)
	return c.Status(status).JSON(fiber.Map{"error": msg, "request_id": reqID})
}
