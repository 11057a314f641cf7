// Package server exposes recognition over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MrCodeEU/facepca/pkg/config"
	"github.com/MrCodeEU/facepca/pkg/evaluation"
	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/recognition"
)

// MaxUploadSize bounds the multipart body of image uploads.
const MaxUploadSize = 32 << 20

// Server is the HTTP front end of an annotator.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	annotator  *recognition.Annotator
	cache      *evaluation.Cache
}

// New creates a server; call Start to listen.
func New(cfg *config.Config, annotator *recognition.Annotator, cache *evaluation.Cache) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:    cfg,
		router:    r,
		annotator: annotator,
		cache:     cache,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/labels", s.labels)
		r.Get("/accuracy", s.accuracy)
		r.Get("/evaluation", s.evaluation)
		r.Post("/recognize", s.recognize)
		r.Post("/annotate", s.annotate)
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	logging.Component("server").Infof("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Component("server").Info("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
