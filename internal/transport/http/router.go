// Package httptransport assembles the API router: middleware chain, the
// per-domain handlers, health and metrics endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agirails/actp-kernel-sub001/internal/platform/config"
	"github.com/agirails/actp-kernel-sub001/internal/platform/metrics"
	"github.com/agirails/actp-kernel-sub001/internal/platform/middleware"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/middleware/requesttime"
)

// Registrar mounts a domain handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator middleware.TokenValidator
	Server    config.Server

	// Public handlers skip authentication (reads); Protected ones require
	// a bearer token.
	Public    []Registrar
	Protected []Registrar

	// Health reports readiness of backing stores; nil means always healthy.
	Health func(r *http.Request) error
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Observe(deps.Metrics))
	}
	r.Use(middleware.RateLimit(deps.Server.RateLimitRPS, deps.Server.RateLimitBurst))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range deps.Public {
		h.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		for _, h := range deps.Protected {
			h.Register(r)
		}
	})

	return r
}
