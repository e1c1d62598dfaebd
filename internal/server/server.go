// Package server exposes recorded runs and the live process table over a
// small JSON API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/internal/store"
)

// Version is reported by the discovery and health endpoints.
const Version = "0.1.0"

// Server is the ossim monitor API server.
type Server struct {
	router       chi.Router
	logger       *slog.Logger
	config       config.ServerConfig
	startTime    time.Time
	store        store.Store
	live         *sink.Live    // optional; nil when no simulation runs in this process
	pollInterval time.Duration // live stream poll period
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLive serves the snapshot of the simulation feeding live.
func WithLive(live *sink.Live) Option {
	return func(s *Server) {
		s.live = live
	}
}

// WithPollInterval sets how often the live stream checks for a new snapshot.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pollInterval = d
	}
}

// New creates a new Server with all routes registered.
// st may be nil, in which case the run endpoints report an internal error.
func New(cfg config.ServerConfig, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		logger:       logger.With("component", "server"),
		config:       cfg,
		startTime:    time.Now(),
		store:        st,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleListEvents)
				r.Get("/snapshot", s.handleGetSnapshot)
			})
		})

		r.Route("/live", func(r chi.Router) {
			r.Get("/", s.handleLive)
			r.Get("/stream", s.handleLiveStream)
		})
	})
}
