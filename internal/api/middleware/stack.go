// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware holds the HTTP ingress stack.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

type StackConfig struct {
	// TracingService enables otelhttp spans; empty disables tracing.
	TracingService string
	EnableLogging  bool
	RateLimit      RateLimitConfig
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the middleware in a fixed order: recovery outermost,
// then request id, headers, metrics, tracing, logging and rate limiting.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(Metrics)
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(Logging)
	}
	r.Use(RateLimit(cfg.RateLimit))
}
