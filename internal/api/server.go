// Package api serves the predictor over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starpredict/internal/auth"
	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/health"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/passes"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/stream"
	"github.com/star/starpredict/internal/tle"
	"github.com/star/starpredict/internal/visibility"
)

// Deps are the components the handlers call into. Stream may be nil, in
// which case the position feed is not registered.
type Deps struct {
	Store      *tle.Store
	Catalog    *propagation.Catalog
	Sampler    *observe.Sampler
	Passes     *passes.Scanner
	Visibility *visibility.Scanner
	Stream     *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           NewHandler(cfg, deps, logger),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with its middleware chain:
// metrics -> logging -> auth -> rate limit -> mux.
func NewHandler(cfg config.Config, deps Deps, logger *slog.Logger) http.Handler {
	h := &handlers{deps: deps, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/satellites", h.listSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/position", h.position)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/ephemeris", h.ephemeris)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/transits", h.transits)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/windows", h.windows)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/period", h.period)
	mux.HandleFunc("GET /api/v1/positions", h.positions)
	mux.HandleFunc("GET /api/v1/visibility", h.visibility)
	mux.HandleFunc("POST /api/v1/passes", h.passes)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	}

	var handler http.Handler = mux
	if cfg.RateLimit.RPS > 0 {
		limiter := NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		handler = rateLimitMiddleware(limiter, cfg.HTTP.TrustProxy)(handler)
	}
	handler = auth.Middleware(auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token})(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush lets the event stream push through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
