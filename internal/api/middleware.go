package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/auth"
	"github.com/chikezeogu/fundflow/internal/domain"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requireResolver rejects actors that cannot resolve the category
// before anything downstream (the rate counter included) runs.
func (h *Handler) requireResolver(category domain.RequestCategory, endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			h.respondError(w, http.StatusUnauthorized, "Authentication required", r.Method, endpoint)
			return
		}
		if !actor.Role.CanResolve(category) {
			h.respondError(w, http.StatusForbidden, "Actor lacks the required role", r.Method, endpoint)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with method, path, status
// and duration.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
