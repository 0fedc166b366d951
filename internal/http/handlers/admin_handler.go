package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/session"
)

type AdminHandler struct {
	sessions *session.Manager
}

func NewAdminHandler(sessions *session.Manager) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

// GET /admin/sessions
func (h *AdminHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"count":    h.sessions.Len(),
		"sessions": h.sessions.Stats(),
	})
}
