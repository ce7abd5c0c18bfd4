// Package server provides the HTTP API for matome.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/storage"
	"github.com/hyperjump/matome/pkg/utils"
)

// Readiness reports whether the embedding provider can serve requests.
// *embedding.Provider implements it.
type Readiness interface {
	Ready() bool
	Status() embedding.Status
}

// Server is the HTTP server for the matome API.
type Server struct {
	engine    *engine.Engine
	provider  Readiness
	cache     storage.EmbeddingStore
	cachePath string
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCache reports the persistent embedding cache on the status endpoint.
func WithCache(cache storage.EmbeddingStore, path string) Option {
	return func(s *Server) {
		s.cache = cache
		s.cachePath = path
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	eng *engine.Engine,
	provider Readiness,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:    eng,
		provider:  provider,
		config:    cfg,
		logger:    utils.NopIfNil(logger),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with all middleware and routes installed.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Post("/cluster-questions", s.handleClusterQuestions)
	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
