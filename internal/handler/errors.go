package handler

import (
	"errors"
	"net/http"

	"github.com/tabletap/api/internal/order"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error         string              `json:"error"`
	Code          string              `json:"code,omitempty"`
	Status        order.Status        `json:"status,omitempty"`
	PaymentStatus order.PaymentStatus `json:"payment_status,omitempty"`
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(kind order.Kind) int {
	switch kind {
	case order.KindValidation:
		return http.StatusBadRequest
	case order.KindNotFound:
		return http.StatusNotFound
	case order.KindStateConflict:
		return http.StatusConflict
	case order.KindUpstreamPayment:
		return http.StatusBadGateway
	case order.KindConcurrencyConflict:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError renders err from the order engine. State conflicts
// carry the order's current state so the caller can refresh and decide.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var e *order.Error
	if !errors.As(err, &e) {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := errorResponse{Error: e.Message, Code: e.Code}
	var te *order.TransitionError
	if errors.As(err, &te) {
		resp.Error = te.Error()
		resp.Status = te.Status
		resp.PaymentStatus = te.PaymentStatus
	}
	status := statusFor(e.Kind)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}
