package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/viral-platform/miniapp/internal/channelpreview"
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/db"
	"github.com/viral-platform/miniapp/internal/events"
	apphttp "github.com/viral-platform/miniapp/internal/http"
	"github.com/viral-platform/miniapp/internal/http/handlers"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/session"
	"github.com/viral-platform/miniapp/internal/verifier"
	"github.com/viral-platform/miniapp/internal/worker"
	"github.com/viral-platform/miniapp/migrations"
	"go.uber.org/zap"
)

const channelPreviewRetries = 3

func main() {
	cfg := config.Load()

	log, _ := zap.NewProduction()
	if cfg.Debug {
		log, _ = zap.NewDevelopment()
	}
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	var migrationFS fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		migrationFS = os.DirFS(cfg.MigrationsDir)
	}
	if _, err := db.RunMigrations(ctx, pool, migrationFS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis (optional)
	var (
		rdb        *redis.Client
		publisher  events.Publisher
		subscriber events.Subscriber
		modalKV    repositories.KV
	)
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		bus := events.NewRedisBus(rdb, log)
		publisher, subscriber = bus, bus
		modalKV = repositories.NewModalRepo(rdb)
	} else {
		bus := events.NewLocalBus()
		publisher, subscriber = bus, bus
		modalKV = repositories.NewMemoryKV()
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)

	// Services
	remote := verifier.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.RemoteTimeout, cfg.RemoteMaxRetry, log)
	prices := services.NewPriceFeed(
		services.NewHTTPPriceSource(cfg.PriceAPIURL, cfg.PriceCoinID, cfg.PriceCurrency, cfg.RemoteTimeout),
		cfg.PriceFallback, cfg.PriceCurrency, cfg.PriceRefresh, log,
	)
	walletService := services.NewWalletService(walletRepo, cfg.TONNetwork, cfg.TONProofAllowedDomains, log)
	modals := services.NewModalSuppression(modalKV, cfg.ModalSuppressFor, log)

	var requests *services.PaymentRequestBuilder
	if cfg.TONPaymentAddress != "" {
		requests, err = services.NewPaymentRequestBuilder(cfg.TONPaymentAddress, cfg.TONNetwork)
		if err != nil {
			log.Fatal("invalid TON_PAYMENT_ADDRESS", zap.Error(err))
		}
	}

	sessions := session.NewManager(&session.AppContext{
		Config:    cfg,
		Log:       log,
		Verifier:  remote,
		Wallets:   walletService,
		Publisher: publisher,
	})
	prices.OnUpdate(sessions.PublishPrice)

	// Handlers
	wsHub := handlers.NewWSHub(cfg.JWTSecret, subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to events", zap.Error(err))
	}

	h := apphttp.Handlers{
		Auth:         handlers.NewAuthHandler(userRepo, cfg, log),
		Price:        handlers.NewPriceHandler(prices),
		Channel:      handlers.NewChannelHandler(channelpreview.NewParser(cfg.ChannelFetchTimeout, channelPreviewRetries, log), log),
		Subscription: handlers.NewSubscriptionHandler(sessions, log),
		Payment:      handlers.NewPaymentHandler(sessions, requests, log),
		Wallet:       handlers.NewWalletHandler(walletService, sessions, log),
		Modal:        handlers.NewModalHandler(modals, log),
		Admin:        handlers.NewAdminHandler(sessions),
		WS:           wsHub,
	}

	// Background tasks
	priceTask := prices.Start(ctx)
	reaper := sessions.StartReaper(ctx)
	poller := sessions.StartPaymentPolling(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}

	cancel()
	for _, task := range []*worker.Handle{priceTask, poller, reaper} {
		task.Stop()
		log.Debug("background task stopped", zap.String("task", task.Name()))
	}
	sessions.Close()
	log.Info("stopped")
}
