package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/payment"
	"github.com/tabletap/api/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Signature"

// PaymentSettler defines the service methods needed by the webhook handler.
type PaymentSettler interface {
	ConfirmPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
	FailPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
}

// WebhookHandler receives asynchronous payment results from the provider.
// Providers retry until they see a 2xx, so settling an already-final
// payment, or a reference no order carries any more, is acknowledged rather
// than rejected.
type WebhookHandler struct {
	svc    PaymentSettler
	secret string
	log    *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc PaymentSettler, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret, log: log}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/webhook", h.Receive)
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	cb, status, err := payment.ParseCallback(h.secret, body, r.Header.Get(SignatureHeader))
	if errors.Is(err, payment.ErrInvalidSignature) {
		h.log.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	log := h.log.With(zap.String("reference", cb.Reference), zap.String("status", string(status)))
	switch status {
	case payment.StatusPaid:
		_, err = h.svc.ConfirmPayment(r.Context(), uuid.Nil, cb.Reference)
	case payment.StatusFailed:
		_, err = h.svc.FailPayment(r.Context(), uuid.Nil, cb.Reference)
	default:
		log.Debug("webhook: payment still pending")
	}

	switch {
	case errors.Is(err, order.ErrPaymentAlreadyFinal):
		log.Info("webhook: payment already final")
		err = nil
	case errors.Is(err, order.ErrPaymentNotFound):
		// Unknown, or superseded by a later attempt; redelivery cannot help.
		log.Warn("webhook: no orders carry this reference")
		err = nil
	}
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
