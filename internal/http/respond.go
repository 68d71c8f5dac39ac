package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/medimart/orders/internal/repository"
	"github.com/medimart/orders/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Details: details,
	})
}

// handleServiceError maps the core error taxonomy onto HTTP statuses. Clients
// distinguish retry-with-different-input, wait-for-async-resolution and
// payment-failed from the code field.
func handleServiceError(w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	var stock *service.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.As(err, &stock):
		respondError(w, http.StatusConflict, "insufficient_stock", stock.Error())
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, service.ErrPrescriptionRequired):
		respondError(w, http.StatusUnprocessableEntity, "prescription_required", err.Error())
	case errors.Is(err, service.ErrPrescriptionCoverageIncomplete):
		respondError(w, http.StatusUnprocessableEntity, "prescription_coverage_incomplete", err.Error())
	case errors.Is(err, service.ErrPrescriptionNotVerified):
		respondError(w, http.StatusUnprocessableEntity, "prescription_not_verified", err.Error())
	case errors.Is(err, service.ErrPaymentFailed):
		respondError(w, http.StatusPaymentRequired, "payment_failed", err.Error())
	case errors.Is(err, service.ErrGatewayInitiationFailed):
		respondError(w, http.StatusBadGateway, "gateway_initiation_failed", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, service.IllegalTransitionError):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, repository.ErrCartExists):
		// Two requests raced to create the same guest's cart; the client can
		// simply retry.
		respondError(w, http.StatusConflict, "cart_exists", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrLineNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrOfferingNotFound),
		errors.Is(err, repository.ErrPrescriptionNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
