package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config holds the HTTP server settings.
type Config struct {
	// Listen is the host:port the server binds to.
	Listen string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes caps request bodies. Observation uploads are the largest.
	MaxBodyBytes int64
}

// Default server settings.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 2 * time.Minute
	DefaultMaxBodyBytes = 32 << 20
)

// DefaultConfig returns a Config listening on addr with default limits.
func DefaultConfig(addr string) Config {
	return Config{
		Listen:       addr,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  Config
}

// NewServer creates a server that routes to handler.
func NewServer(cfg Config, handler *Handler) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	router := chi.NewRouter()

	router.Use(RequestIDMiddleware)
	router.Use(handler.RecoverMiddleware)
	router.Use(handler.LoggingMiddleware)
	router.Use(middleware.CleanPath)
	router.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)

	router.Get("/profiles", handler.ListProfiles)
	router.Get("/profiles/{type}", handler.GetProfile)
	router.Post("/profiles/custom", handler.CreateCustomProfile)

	router.Get("/weight-profile", handler.GetWeightProfile)
	router.Put("/weight-profile", handler.SetWeightProfile)

	router.Post("/analyze", handler.Analyze)

	router.Route("/analyses", func(r chi.Router) {
		r.Get("/", handler.ListAnalyses)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetAnalysis)
			r.Get("/pairs", handler.ListPairs)
			r.Get("/pairs/{pairID}/reasoning", handler.GetPairReasoning)
			r.Get("/clusters", handler.ListClusters)
			r.Get("/summary", handler.GetSummary)
		})
	})

	router.Get("/repetition-stats", handler.GetRepetitionStats)
	router.Post("/repetition/reset", handler.ResetRepetition)

	router.Get("/topology/snapshots", handler.ListSnapshots)
	router.Post("/circuits/validate", handler.ValidateCircuit)

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start listens and serves until Shutdown is called.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.handler.logger.Info("http server listening", "address", s.config.Listen)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
