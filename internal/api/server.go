// Package api provides the HTTP server exposing the placement portal core.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dsiportal/placement-sync/internal/api/common"
	v1 "github.com/dsiportal/placement-sync/internal/api/v1"
	"github.com/dsiportal/placement-sync/internal/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	metrics     http.Handler
	assets      http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = h
	}
}

// WithAssetsHandler serves the UI through h for every path not claimed by
// the API
func WithAssetsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.assets = h
	}
}

// NewServer creates the HTTP router over svc
func NewServer(svc v1.Services, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", v1.HealthHandler)
	r.Get("/readiness", v1.ReadinessHandler(svc.Sync))
	r.Get("/version", versionHandler)
	r.Mount("/v1", v1.Router(svc))

	if cfg.metrics != nil {
		r.Handle("/metrics", cfg.metrics)
	}
	if cfg.assets != nil {
		r.Mount("/", cfg.assets)
	}
	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	common.WriteJSONResponse(w, VersionResponse(info), http.StatusOK)
}
