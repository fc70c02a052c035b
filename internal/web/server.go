// Package web provides the HTTP server and handlers for the connector gateway.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/connectorgw/internal/config"
	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/executor"
	mw "github.com/JonMunkholm/connectorgw/internal/web/middleware"
)

// BreakerReporter exposes upstream circuit breaker states. *fetch.HTTP
// implements it.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Server is the HTTP server for the connector gateway.
type Server struct {
	exec     *executor.Executor
	cfg      *config.Config
	registry *core.Registry
	breakers BreakerReporter

	router   *chi.Mux
	server   *http.Server
	limiters []*mw.RateLimiter
}

// Options wires a Server. Registry and Breakers are optional.
type Options struct {
	Executor *executor.Executor
	Config   *config.Config
	Registry *core.Registry
	Breakers BreakerReporter
}

// NewServer creates a new Server instance.
func NewServer(opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = core.Default
	}
	s := &Server{
		exec:     opts.Executor,
		cfg:      opts.Config,
		registry: opts.Registry,
		breakers: opts.Breakers,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)
}

// reserved paths cannot be claimed by connector routes.
var reserved = []string{"/service", "/connectors", "/data", "/metrics", "/healthz"}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
		}

		r.Get("/", s.handleIndex)
		r.Get("/connectors", s.handleListConnectors)
		r.Get("/connectors/{name}", s.handleGetConnector)
		r.Get("/data/{name}", s.handleData)

		for _, spec := range s.exec.Catalog().All() {
			route := spec.Route()
			if isReserved(route) {
				slog.Warn("connector route collides with a service path, serving it under /data only",
					"connector", spec.Name(), "route", route)
				continue
			}
			r.Get(route, s.connectorHandler(spec.Name(), connector.PathParams(route)))
		}
	})

	s.router.Route("/service", func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.rateLimit(s.cfg.Rate.ServiceLimit))
		}
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Server.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		}

		r.Get("/settings", s.handleSettings)
		r.Get("/stats", s.handleStats)
		r.Get("/breakers", s.handleBreakers)
		r.Post("/origin_cache/clean", s.handleCleanOriginCache)
		r.Post("/response_cache/clean", s.handleCleanResponseCache)
	})
}

func isReserved(route string) bool {
	if route == "/" {
		return true
	}
	for _, p := range reserved {
		if route == p || strings.HasPrefix(route, p+"/") {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := mw.NewRateLimiter(perMinute)
	s.limiters = append(s.limiters, rl)
	return rl.Handler
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr, "connectors", s.exec.Catalog().Len())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
