package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chikezeogu/fundflow/internal/auth"
	"github.com/chikezeogu/fundflow/internal/domain"
)

// NewRouter wires all routes. The resolution endpoints live at the
// root per the wire contract; everything else is under /api/v1. All
// routes except /health and /metrics require a session token. limiter
// gates the mutating endpoints and may be nil (tests).
//
// On the resolution routes the role guard wraps the limiter: an actor
// who could never resolve the request gets 403 before a rate-limit
// token is spent on them.
func NewRouter(h *Handler, tokens *auth.Manager, limiter mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	limit := func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return limiter(next)
	}

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(mux.MiddlewareFunc(tokens.Authenticate))

	protected.Handle("/withdraw/{requestId}",
		h.requireResolver(domain.CategoryWithdrawal, "/withdraw/{requestId}",
			limit(http.HandlerFunc(h.ResolveWithdrawalHandler)))).Methods("PUT")
	protected.Handle("/top-up/{requestId}",
		h.requireResolver(domain.CategoryTopUp, "/top-up/{requestId}",
			limit(http.HandlerFunc(h.ResolveTopUpHandler)))).Methods("PUT")

	apiV1 := protected.PathPrefix("/api/v1").Subrouter()
	apiV1.Handle("/withdraw", limit(http.HandlerFunc(h.SubmitWithdrawalHandler))).Methods("POST")
	apiV1.HandleFunc("/withdraw", h.ListWithdrawalsHandler).Methods("GET")
	apiV1.Handle("/top-up", limit(http.HandlerFunc(h.SubmitTopUpHandler))).Methods("POST")
	apiV1.HandleFunc("/top-up", h.ListTopUpsHandler).Methods("GET")
	apiV1.Handle("/attachments", limit(http.HandlerFunc(h.UploadAttachmentHandler))).Methods("POST")
	apiV1.HandleFunc("/requests/{id}", h.GetRequestHandler).Methods("GET")
	apiV1.HandleFunc("/members/{id}/ledger", h.GetLedgerHandler).Methods("GET")
	apiV1.HandleFunc("/members/{id}/transactions", h.ListTransactionsHandler).Methods("GET")
	apiV1.HandleFunc("/members/{id}/notifications", h.ListNotificationsHandler).Methods("GET")
	apiV1.Handle("/notifications/{id}/read", limit(http.HandlerFunc(h.MarkNotificationReadHandler))).Methods("PUT")

	return r
}
