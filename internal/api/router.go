// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/repopulse/internal/middleware"
)

// RouterConfig holds the HTTP security settings.
type RouterConfig struct {
	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	RateLimitReqs   int
	RateLimitWindow time.Duration
	CORSOrigins     []string
}

// NewRouter wires all routes with the global middleware stack.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = 300
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/v1/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)

		r.Route("/ci", func(r chi.Router) {
			r.Get("/", h.GetCI)
			r.Get("/gaps", h.GetCIGaps)
			r.Post("/refresh", h.RefreshCI)
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/sync", h.SyncItems)
			r.Get("/open-counts", h.OpenCounts)
			r.Get("/labels", h.LabelSeries)
			r.Get("/triage", h.Triage)
			r.Get("/pr-health", h.PRHealth)
		})

		r.Get("/bus-factor", h.BusFactor)
	})

	return r
}
