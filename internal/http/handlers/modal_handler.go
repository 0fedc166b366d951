package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/middleware"
	"github.com/viral-platform/miniapp/internal/services"
	"go.uber.org/zap"
)

type ModalHandler struct {
	modals *services.ModalSuppression
	log    *zap.Logger
}

func NewModalHandler(modals *services.ModalSuppression, log *zap.Logger) *ModalHandler {
	return &ModalHandler{modals: modals, log: log}
}

func (h *ModalHandler) modalName(c *fiber.Ctx) (string, bool) {
	name := c.Params("name")
	return name, services.ValidModalName(name)
}

// GET /me/modals/:name
func (h *ModalHandler) GetModal(c *fiber.Ctx) error {
	name, ok := h.modalName(c)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid modal name")
	}
	suppressed, err := h.modals.IsSuppressed(c.Context(), middleware.GetTelegramUserID(c), name)
	if err != nil {
		// the modal is shown again rather than failing the screen
		h.log.Warn("failed to read modal suppression", zap.String("modal", name), zap.Error(err))
	}
	return c.JSON(dto.ModalResponse{Name: name, Suppressed: suppressed})
}

// Suppress hides the modal for the suppression window ("don't show again").
// POST /me/modals/:name/suppress
func (h *ModalHandler) Suppress(c *fiber.Ctx) error {
	name, ok := h.modalName(c)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid modal name")
	}
	if err := h.modals.Suppress(c.Context(), middleware.GetTelegramUserID(c), name); err != nil {
		h.log.Error("failed to suppress modal", zap.String("modal", name), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}
	return c.JSON(dto.ModalResponse{Name: name, Suppressed: true})
}

// DELETE /me/modals/:name
func (h *ModalHandler) Clear(c *fiber.Ctx) error {
	name, ok := h.modalName(c)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid modal name")
	}
	if err := h.modals.Clear(c.Context(), middleware.GetTelegramUserID(c), name); err != nil {
		h.log.Error("failed to clear modal", zap.String("modal", name), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}
	return c.JSON(dto.ModalResponse{Name: name, Suppressed: false})
}
