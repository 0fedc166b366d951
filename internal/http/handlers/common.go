package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/middleware"
	"github.com/viral-platform/miniapp/internal/session"
	"go.uber.org/zap"
)

func fail(c *fiber.Ctx, status int, msg string) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

// walletRequired tells the client to open the connect-wallet prompt.
func walletRequired(c *fiber.Ctx) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
		Error:      "wallet is not connected",
		RequestID:  reqID,
		ShowPrompt: true,
	})
}

// currentSession returns the session of the authenticated user, creating it
// on first use. On error the response has already been written.
func currentSession(c *fiber.Ctx, sessions *session.Manager, log *zap.Logger) (*session.Session, error) {
	tgID := middleware.GetTelegramUserID(c)
	sess, err := sessions.Get(c.Context(), tgID, middleware.GetUserID(c))
	if err != nil {
		log.Error("failed to open session", zap.Int64("telegram_user_id", tgID), zap.Error(err))
		return nil, fail(c, fiber.StatusInternalServerError, "internal error")
	}
	return sess, nil
}
