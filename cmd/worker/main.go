package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/db"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/worker"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	walletRepo := repositories.NewWalletRepo(pool)

	log.Info("worker started")

	cleanup := worker.Every(ctx, "proof-payload-cleanup", cfg.ProofCleanupInterval, true, func(ctx context.Context) {
		runProofPayloadCleanup(ctx, walletRepo, log)
	}, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cleanup.Stop()
}

// runProofPayloadCleanup deletes TON Proof nonces that expired or were used.
func runProofPayloadCleanup(ctx context.Context, walletRepo *repositories.WalletRepo, log *zap.Logger) {
	n, err := walletRepo.DeleteExpiredPayloads(ctx)
	if err != nil {
		log.Error("failed to delete expired proof payloads", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired proof payloads deleted", zap.Int64("count", n))
	}
}
