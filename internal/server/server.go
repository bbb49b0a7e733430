// Package server provides the HTTP server and routing for Astrolabe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/di"
	anchorhandlers "github.com/astrolabe-io/astrolabe/internal/modules/anchors/handlers"
	assethandlers "github.com/astrolabe-io/astrolabe/internal/modules/assets/handlers"
	planhandlers "github.com/astrolabe-io/astrolabe/internal/modules/plans/handlers"
	quotehandlers "github.com/astrolabe-io/astrolabe/internal/modules/quotes/handlers"
	routinghandlers "github.com/astrolabe-io/astrolabe/internal/modules/routing/handlers"
)

// Server is the HTTP front of the service
type Server struct {
	router    *chi.Mux
	server    *http.Server
	container *di.Container
	log       zerolog.Logger
}

// New creates the HTTP server over a wired container
func New(c *di.Container) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		container: c,
		log:       c.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !s.container.Config.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes mounts every module's handlers
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	systemHandlers := NewSystemHandlers(c, s.log)
	eventsHandler := NewEventsHandler(c.Bus, s.log)

	s.router.Route("/api", func(r chi.Router) {
		assethandlers.NewHandler(c.AssetService, s.log).RegisterRoutes(r)
		anchorhandlers.NewHandler(c.AnchorService, c.AnchorCrawler, s.log).RegisterRoutes(r)
		routinghandlers.NewHandler(c.RouteService, c.GraphBuilder, c.Graph, c.RouteCache, s.log).RegisterRoutes(r)
		quotehandlers.NewHandler(c.QuoteService, s.log).RegisterRoutes(r)
		planhandlers.NewHandler(c.PlanService, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", systemHandlers.Status)
			r.Get("/database/stats", systemHandlers.DatabaseStats)
		})

		r.Get("/events/ws", eventsHandler.Serve)
	})
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start begins serving. Blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with latency and status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
