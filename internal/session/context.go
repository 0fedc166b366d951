package session

import (
	"github.com/viral-platform/miniapp/internal/config"
	"github.com/viral-platform/miniapp/internal/events"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/verifier"
	"go.uber.org/zap"
)

// AppContext carries the process-wide dependencies. It is built once in main
// and never mutated afterwards.
type AppContext struct {
	Config    *config.Config
	Log       *zap.Logger
	Verifier  verifier.RemoteVerifier
	Wallets   *services.WalletService
	Publisher events.Publisher
}
