// Package server provides the HTTP server and routing for Quartermaster.
// The surface is read-only except for the targets reload trigger - buy
// signals never arrive over HTTP, they come from bot processes calling
// the allocator library directly.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/modules/allocator"
	"github.com/aristath/quartermaster/internal/modules/decisionlog"
	"github.com/aristath/quartermaster/internal/modules/targets"
	"github.com/aristath/quartermaster/internal/modules/valuation"
)

// Config holds server configuration.
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	Registry     *targets.Registry
	Allocator    *allocator.Service
	Valuation    valuation.Calculator
	DecisionRepo *decisionlog.Repository
	LedgerDB     *database.DB
}

// Server is the HTTP server.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	registry    *targets.Registry
	alloc       *allocator.Service
	valuation   valuation.Calculator
	decisions   *decisionlog.Repository
	ledgerDB    *database.DB
	startupTime time.Time
}

// New creates a configured server.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		registry:    cfg.Registry,
		alloc:       cfg.Allocator,
		valuation:   cfg.Valuation,
		decisions:   cfg.DecisionRepo,
		ledgerDB:    cfg.LedgerDB,
		startupTime: time.Now().UTC(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if cfg.DevMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Get("/portfolio", s.handlePortfolio)

		r.Get("/targets", s.handleGetTargets)
		r.Post("/targets/reload", s.handleReloadTargets)

		r.Get("/decisions", s.handleGetDecisions)
		r.Get("/decisions/stats", s.handleDecisionStats)

		r.Get("/bots/{botID}", s.handleGetBot)
	})
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
