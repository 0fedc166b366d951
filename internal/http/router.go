package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/http/handlers"
	"github.com/viral-platform/miniapp/internal/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Price        *handlers.PriceHandler
	Channel      *handlers.ChannelHandler
	Subscription *handlers.SubscriptionHandler
	Payment      *handlers.PaymentHandler
	Wallet       *handlers.WalletHandler
	Modal        *handlers.ModalHandler
	Admin        *handlers.AdminHandler
	WS           *handlers.WSHub
}

// SetupRouter mounts every route. rdb may be nil; rate limiting then stays
// in process.
func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/telegram", h.Auth.TelegramAuth)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute, log))

	api.Get("/price", h.Price.GetPrice)
	api.Post("/price/refetch", h.Price.Refetch)
	api.Get("/channels/:username/preview", h.Channel.GetPreview)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))

	protected.Get("/me/subscription", h.Subscription.CheckSubscription)

	// Payments
	protected.Get("/me/payments", h.Payment.ListPayments)
	protected.Post("/me/payments", h.Payment.CreatePayment)
	protected.Post("/me/payments/:id/verify", h.Payment.VerifyPayment)

	// Wallet (TON Connect + Proof)
	protected.Get("/me/wallet", h.Wallet.GetWallet)
	protected.Post("/me/wallet/proof-payload", h.Wallet.GeneratePayload)
	protected.Post("/me/wallet/connect", h.Wallet.ConnectWallet)
	protected.Delete("/me/wallet", h.Wallet.DisconnectWallet)
	protected.Post("/me/wallet/prompt/dismiss", h.Wallet.DismissPrompt)

	// Modals ("don't show again")
	protected.Get("/me/modals/:name", h.Modal.GetModal)
	protected.Post("/me/modals/:name/suppress", h.Modal.Suppress)
	protected.Delete("/me/modals/:name", h.Modal.Clear)

	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg.IsAdmin))
	admin.Get("/sessions", h.Admin.ListSessions)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
