package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/viral-platform/miniapp/internal/http/dto"
	"github.com/viral-platform/miniapp/internal/services"
	"github.com/viral-platform/miniapp/internal/session"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	sessions *session.Manager
	requests *services.PaymentRequestBuilder // nil: payments disabled
	log      *zap.Logger
}

func NewPaymentHandler(sessions *session.Manager, requests *services.PaymentRequestBuilder, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{sessions: sessions, requests: requests, log: log}
}

// ListPayments возвращает последние платежи сессии (новые первыми).
// GET /me/payments?limit=
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	return c.JSON(sess.Payments.State(limit))
}

// CreatePayment builds a TON Connect transfer and starts tracking it.
// Without a connected wallet nothing is created and the connect prompt is raised.
// POST /me/payments
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	if h.requests == nil {
		return fail(c, fiber.StatusServiceUnavailable, "payments are not configured")
	}

	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	amount, err := decimal.NewFromString(req.AmountTON)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "amount_ton must be a decimal number")
	}

	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}

	var (
		created  *services.PaymentRequest
		buildErr error
	)
	ran := sess.Wallet.ExecuteWithWallet(func() {
		created, buildErr = h.requests.Build(amount)
		if buildErr == nil {
			buildErr = sess.Payments.AddPayment(created.Record)
		}
	})
	if !ran {
		return walletRequired(c)
	}
	if buildErr != nil {
		h.log.Debug("payment request rejected", zap.Error(buildErr))
		return fail(c, fiber.StatusBadRequest, buildErr.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// VerifyPayment asks the remote backend about one payment.
// POST /me/payments/:id/verify
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	sess, err := currentSession(c, h.sessions, h.log)
	if sess == nil {
		return err
	}

	id := c.Params("id")
	if _, ok := sess.Payments.Get(id); !ok {
		return fail(c, fiber.StatusNotFound, "payment not found")
	}

	confirmed := sess.Payments.VerifyPayment(c.Context(), id)
	rec, _ := sess.Payments.Get(id)
	return c.JSON(dto.VerifyPaymentResponse{Confirmed: confirmed, Payment: rec})
}
