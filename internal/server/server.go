// Package server provides the HTTP API for taxonomia.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/analyzer"
	"github.com/hyperjump/taxonomia/internal/config"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// Server is the HTTP server for the taxonomia API.
type Server struct {
	svc            *analyzer.Service
	config         *config.Config
	logger         *zap.Logger
	requestTimeout time.Duration
	server         *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc *analyzer.Service, cfg *config.Config, logger *zap.Logger) *Server {
	// An analysis makes two model calls, each bounded by the LLM timeout.
	timeout := 2*cfg.LLM.Timeout + 30*time.Second
	return &Server{
		svc:            svc,
		config:         cfg,
		logger:         utils.LoggerOrNop(logger),
		requestTimeout: timeout,
	}
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.handleCreateAnalysis)
			r.Post("/upload", s.handleUploadAnalysis)
			r.Get("/", s.handleListAnalyses)
			r.Get("/{id}", s.handleGetAnalysis)
			r.Get("/{id}/chart", s.handleAnalysisChart)
			r.Get("/{id}/export", s.handleExportAnalysis)
			r.Delete("/{id}", s.handleDeleteAnalysis)
		})
		r.Get("/stats", s.handleStats)
		r.Get("/stats/export", s.handleStatsExport)
		r.Get("/search", s.handleSearch)
		r.Get("/taxonomy", s.handleTaxonomy)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
