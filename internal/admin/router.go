// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/evrhart/socrt/internal/soc/registry"
)

// Config tunes the admin router's cross-cutting middleware. The zero value
// is usable: no CORS origins are allowed and no rate limit applies (the
// limiter is installed only when RateLimitRequests > 0).
type Config struct {
	// CORSAllowedOrigins lists origins permitted to call the admin API from
	// a browser. Empty means no browser origin is allowed.
	CORSAllowedOrigins []string

	// RateLimitRequests and RateLimitWindow bound how often a single
	// remote IP may call the admin API.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DefaultConfig returns a conservative default: no CORS origins, 120
// requests per minute per IP.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,
	}
}

// Handler holds the dependencies every admin route reads from.
type Handler struct {
	registry  *registry.Registry
	startTime time.Time
}

// NewRouter builds the admin HTTP handler over reg. It is mounted as a
// plain http.Handler, so callers are free to wrap it in their own
// http.Server and supervise it however they see fit.
func NewRouter(reg *registry.Registry, cfg Config) http.Handler {
	h := &Handler{registry: reg, startTime: time.Now()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))
	if cfg.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.Get("/livez", h.livez)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/services", h.listServices)
	})

	r.Get("/swagger/doc.json", serveSwaggerSpec)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DomID("swagger-ui"),
	))

	return r
}
