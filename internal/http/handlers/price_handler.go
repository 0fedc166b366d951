package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/services"
)

type PriceHandler struct {
	feed *services.PriceFeed
}

func NewPriceHandler(feed *services.PriceFeed) *PriceHandler {
	return &PriceHandler{feed: feed}
}

// GET /price
func (h *PriceHandler) GetPrice(c *fiber.Ctx) error {
	return c.JSON(h.feed.State())
}

// Refetch forces a price update. On failure the last price stays and the
// state carries the error.
// POST /price/refetch
func (h *PriceHandler) Refetch(c *fiber.Ctx) error {
	h.feed.Refetch(c.Context())
	return c.JSON(h.feed.State())
}
