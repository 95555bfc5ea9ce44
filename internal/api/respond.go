package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/domain"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondSuccess(w http.ResponseWriter, code int, data any, method, endpoint string) {
	h.respondJSON(w, code, successEnvelope{Success: true, Data: data}, method, endpoint)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

// respondBusinessError maps the error taxonomy to HTTP status codes.
// Unexpected errors become a bare 500; detail stays in the logs.
func (h *Handler) respondBusinessError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		h.respondError(w, http.StatusForbidden, "Actor lacks the required role", method, endpoint)
	case errors.Is(err, domain.ErrRateLimited):
		h.respondError(w, http.StatusTooManyRequests, "Too many requests", method, endpoint)
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, domain.ErrAlreadyResolved):
		h.respondError(w, http.StatusBadRequest, "Request already resolved", method, endpoint)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.respondError(w, http.StatusBadRequest, "Insufficient funds", method, endpoint)
	case errors.Is(err, domain.ErrInvalidState):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	default:
		h.log.Error("internal error", zap.String("endpoint", endpoint), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}
