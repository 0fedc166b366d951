package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/middleware"
	"github.com/viral-platform/miniapp/internal/models"
	"github.com/viral-platform/miniapp/internal/repositories"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/session"
	"github.com/viral-platform/miniapp/internal/ton"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletService *services.WalletService
	sessions      *session.Manager
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, sessions *session.Manager, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, sessions: sessions, log: log}
}

// GetWallet возвращает активный кошелёк и состояние гарда.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}

	var wallet *models.UserWallet
	w, err := h.walletService.GetActiveWallet(c.Context(), sess.UserID)
	switch {
	case err == nil:
		wallet = w
	case errors.Is(err, repositories.ErrNotFound):
	default:
		h.log.Error("failed to load wallet", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.JSON(dto.WalletResponse{Wallet: wallet, Guard: sess.Wallet.State()})
}

// GeneratePayload создаёт nonce для TON Proof.
// POST /me/wallet/proof-payload
func (h *WalletHandler) GeneratePayload(c *fiber.Ctx) error {
	payload, err := h.walletService.GeneratePayload(c.Context(), middleware.GetUserID(c))
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}
	return c.JSON(fiber.Map{"payload": payload})
}

// ConnectWallet подключает кошелёк после проверки TON Proof.
// POST /me/wallet/connect
func (h *WalletHandler) ConnectWallet(c *fiber.Ctx) error {
	var req services.ConnectWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return fail(c, fiber.StatusBadRequest, "address, public_key, and proof.signature are required")
	}

	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}

	wallet, err := h.walletService.ConnectWallet(c.Context(), sess.UserID, req)
	if err != nil {
		if isClientWalletError(err) {
			h.log.Debug("wallet connect rejected", zap.Error(err))
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		h.log.Error("wallet connect failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}

	sess.Wallet.SetShowPrompt(false)
	h.sessions.PublishWallet(sess.TelegramUserID, sess.Wallet.State())

	return c.JSON(dto.SuccessResponse{OK: true, Data: wallet})
}

// DisconnectWallet отключает кошелёк.
// DELETE /me/wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}
	if err := h.walletService.DisconnectWallet(c.Context(), sess.UserID); err != nil {
		h.log.Error("failed to disconnect wallet", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "failed to disconnect wallet")
	}
	h.sessions.PublishWallet(sess.TelegramUserID, sess.Wallet.State())
	return c.JSON(dto.SuccessResponse{OK: true})
}

// DismissPrompt closes the connect-wallet prompt.
// POST /me/wallet/prompt/dismiss
func (h *WalletHandler) DismissPrompt(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}
	sess.Wallet.SetShowPrompt(false)
	return c.JSON(dto.SuccessResponse{OK: true, Data: sess.Wallet.State()})
}

func isClientWalletError(err error) bool {
	return errors.Is(err, services.ErrInvalidPayload) ||
		errors.Is(err, services.ErrInvalidProof) ||
		errors.Is(err, services.ErrNetworkMismatch) ||
		errors.Is(err, ton.ErrInvalidAddress)
}
