package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/pkg/logger"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleServiceError maps the domain error kinds to HTTP statuses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		stockErr      *apperr.StockError
		validationErr *apperr.ValidationError
		transitionErr *apperr.TransitionError
	)

	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: stockErr.Error(),
			Code:  "insufficient_stock",
			Details: map[string]interface{}{
				"productId": stockErr.ProductID,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			},
		})
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validationErr.Error(),
			Code:    "validation_failed",
			Details: validationErr.Fields,
		})
	case errors.As(err, &transitionErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   transitionErr.Error(),
			Code:    "invalid_transition",
			Details: map[string]string{"from": transitionErr.From, "to": transitionErr.To},
		})
	case errors.Is(err, apperr.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, apperr.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, apperr.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperr.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func logFailure(ctx context.Context, err error, msg string) {
	logger.Ctx(ctx).Error().Err(err).Msg(msg)
}
