// Package web exposes the retrieval core over a JSON HTTP API for the
// serve command.
package web

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakuga-labs/scriptrag/internal/embed"
	"github.com/sakuga-labs/scriptrag/internal/ingest"
	"github.com/sakuga-labs/scriptrag/internal/search"
	"github.com/sakuga-labs/scriptrag/internal/store"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host     string
	Port     int
	Corpus   *store.IndexedCorpus
	Provider embed.Provider
	// Ingestor serves POST /api/ingest. Nil disables that endpoint.
	Ingestor *ingest.Ingestor
}

// Server is the scriptrag HTTP API server.
type Server struct {
	config    ServerConfig
	router    *chi.Mux
	handler   *Handler
	retriever *search.Retriever
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		retriever: search.NewRetriever(cfg.Corpus, cfg.Provider),
	}

	s.handler = NewHandler(s.retriever, cfg.Ingestor)
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the server.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handler.Health)
		r.Get("/info", s.handler.Info)
		r.Post("/query", s.handler.Query)
		r.Post("/context", s.handler.Context)
		r.Post("/ingest", s.handler.Ingest)
	})
}

// Router returns the chi router for external use.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Printf("Starting scriptrag API server on http://%s", addr)
	return http.ListenAndServe(addr, s.router)
}
