// Package server provides the HTTP query API for tarotvision.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/config"
	"github.com/tarotvision/tarotvision/internal/index"
)

// Server exposes deck queries over HTTP so the web app can search without
// shelling out to the CLI.
type Server struct {
	query       *index.Query
	defaultDeck string
	defaultTopK int
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(query *index.Query, search *config.SearchConfig, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		query:       query,
		defaultDeck: search.DefaultDeck,
		defaultTopK: search.DefaultTopK,
		config:      cfg,
		logger:      logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
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
