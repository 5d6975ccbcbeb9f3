// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP control surface of the daemon.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/api/middleware"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/session"
	"github.com/ManuGH/devcam/internal/health"
	"github.com/ManuGH/devcam/internal/journal"
	"github.com/ManuGH/devcam/internal/log"
)

// Capturer is the part of the capture manager the API drives.
type Capturer interface {
	Capture(ctx context.Context, design model.Design) (model.RunInfo, error)
	Status() session.Status
}

type RunStore interface {
	Begin(ctx context.Context, run model.RunInfo) (string, error)
	Get(ctx context.Context, id string) (journal.Run, error)
	List(ctx context.Context, limit int) ([]journal.Run, error)
}

type DesignStore interface {
	Load(name string) (model.Design, error)
	List() ([]string, error)
	Save(d model.Design) error
}

// Deps are the collaborators of the server. Gatherer defaults to the
// global prometheus registry.
type Deps struct {
	Capturer Capturer
	Runs     RunStore
	Designs  DesignStore
	Health   *health.Manager
	Gatherer prometheus.Gatherer
	Stack    middleware.StackConfig
}

type Server struct {
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

func New(deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps, logger: log.WithComponent("api")}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(s.deps.Stack)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/captures", s.handleCapture)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)

		r.Get("/designs", s.handleListDesigns)
		r.Get("/designs/{name}", s.handleGetDesign)
		r.Put("/designs/{name}", s.handlePutDesign)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates/{template}", s.handleTemplate)
	})
	return r
}
