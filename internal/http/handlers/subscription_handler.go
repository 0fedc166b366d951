package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/session"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	sessions *session.Manager
	log      *zap.Logger
}

func NewSubscriptionHandler(sessions *session.Manager, log *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{sessions: sessions, log: log}
}

// CheckSubscription runs a fresh check and returns the resulting state.
// A failed check is still a 200: the state carries the error.
// GET /me/subscription?channel=
func (h *SubscriptionHandler) CheckSubscription(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}
	sess.Subscription.CheckSubscription(c.Context(), sess.TelegramUserID, c.Query("channel"))
	return c.JSON(sess.Subscription.State())
}
