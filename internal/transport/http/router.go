// Package http assembles the service's HTTP surface: module handlers,
// health checking and Prometheus metrics behind shared middleware.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustline/internal/platform/middleware"
	"trustline/pkg/platform/httputil"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthFunc probes a dependency. A nil HealthFunc means always healthy.
type HealthFunc func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// NewRouter mounts all module handlers plus /healthz and /metrics.
func NewRouter(logger *slog.Logger, health HealthFunc, registrars ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handleHealth(logger, health))

	for _, registrar := range registrars {
		registrar.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

func handleHealth(logger *slog.Logger, health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := health(ctx); err != nil {
				if logger != nil {
					logger.ErrorContext(ctx, "health check failed", "error", err)
				}
				httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
