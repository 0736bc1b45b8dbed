// Package api provides the HTTP surface of the marker server: the WebSocket
// endpoint, read-only marker queries, health and metrics.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/OCAP2/interactive-markers/pkg/core"
	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

// MarkerReader answers marker queries from the published state.
type MarkerReader interface {
	Snapshot() core.UpdateBatch
	Published(name string) (core.Marker, bool)
}

// StatusProvider reports server health.
type StatusProvider interface {
	Status() streaming.Health
}

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	namespace      string
	requestTimeout time.Duration
	metrics        http.Handler
	logger         *slog.Logger
	middlewares    []func(http.Handler) http.Handler
}

// WithNamespace sets the path prefix of the marker routes. Default "imarkers".
func WithNamespace(ns string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.namespace = ns
	}
}

// WithRequestTimeout bounds the REST handlers. The WebSocket route is exempt.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) {
		cfg.requestTimeout = d
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(cfg *serverConfig) {
		cfg.logger = l
	}
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// NewServer creates and configures the HTTP router
func NewServer(markers MarkerReader, subscribe http.Handler, status StatusProvider, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		namespace:      "imarkers",
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		LoggingMiddleware(cfg.logger),
	)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	routes := &Routes{markers: markers, status: status}

	r.Get("/healthz", routes.health)
	if cfg.metrics != nil {
		r.Handle("/metrics", cfg.metrics)
	}

	r.Route("/"+cfg.namespace, func(r chi.Router) {
		r.Handle("/ws", subscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.requestTimeout))
			r.Get("/markers", routes.listMarkers)
			r.Get("/markers/{name}", routes.getMarker)
		})
	})

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()),
			)
		})
	}
}
