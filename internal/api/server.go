// Package api exposes the orchestrator over HTTP: a tick trigger,
// campaign lifecycle transitions, and the usual health and metrics
// endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/config"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/engine"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/template"
)

// Verifier is the slice of the verification client the API needs
type Verifier interface {
	Credits(ctx context.Context) (int, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	engine     *engine.Engine
	campaigns  *store.CampaignRepository
	leads      *store.LeadRepository
	templates  *store.TemplateRepository
	renderer   *template.Engine
	verifier   Verifier
	config     *config.ServerConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(
	eng *engine.Engine,
	campaigns *store.CampaignRepository,
	leads *store.LeadRepository,
	templates *store.TemplateRepository,
	verifier Verifier,
	cfg *config.ServerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		campaigns: campaigns,
		leads:     leads,
		templates: templates,
		renderer:  template.NewEngine(),
		verifier:  verifier,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health and metrics (no auth required)
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Get("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/tick", s.handleTick)
		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/transition", s.handleTransition)
		r.Post("/campaigns/{id}/leads", s.handleAddLeads)
		r.Post("/templates", s.handleCreateTemplate)
		r.Get("/templates", s.handleListTemplates)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Post("/templates/{id}/preview", s.handlePreviewTemplate)
		r.Get("/verifier/credits", s.handleCredits)
	})
}

// Handler returns the HTTP handler for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
