package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new API server. pixel and health may be nil.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker, pixel PixelMounter) *Server {
	router := SetupRoutes(h, health, pixel, cfg.AllowedOrigins)
	return &Server{
		config:  cfg,
		handler: router,
		router:  router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Deliver can spend several send timeouts retrying.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
