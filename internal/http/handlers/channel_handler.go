package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/channelpreview"
	"go.uber.org/zap"
)

// PreviewFetcher is satisfied by *channelpreview.Parser.
type PreviewFetcher interface {
	FetchPreview(ctx context.Context, username string) (*channelpreview.Preview, error)
}

type ChannelHandler struct {
	previews PreviewFetcher
	log      *zap.Logger
}

func NewChannelHandler(previews PreviewFetcher, log *zap.Logger) *ChannelHandler {
	return &ChannelHandler{previews: previews, log: log}
}

// GetPreview отдаёт публичное превью канала для экрана подписки.
// GET /channels/:username/preview
func (h *ChannelHandler) GetPreview(c *fiber.Ctx) error {
	p, err := h.previews.FetchPreview(c.Context(), c.Params("username"))
	switch {
	case err == nil:
		c.Set(fiber.HeaderCacheControl, "public, max-age=600")
		return c.JSON(p)
	case errors.Is(err, channelpreview.ErrInvalidUsername):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, channelpreview.ErrNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	default:
		h.log.Warn("channel preview failed", zap.String("username", c.Params("username")), zap.Error(err))
		return fail(c, fiber.StatusBadGateway, "failed to fetch channel preview")
	}
}
