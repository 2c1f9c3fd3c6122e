package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/inspectdiff/internal/inspection"
	"github.com/zombor/inspectdiff/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server handles HTTP requests for inspections and comparisons
type Server struct {
	service   *inspection.Service
	basicAuth BasicAuth
	metrics   *metrics.Metrics
	mux       *http.ServeMux
	handler   http.Handler
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Options configures the optional parts of a Server
type Options struct {
	BasicAuth BasicAuth
	// RateLimit is the sustained requests per second; 0 disables limiting
	RateLimit float64
	RateBurst int
	// Metrics enables request metrics and the /metrics endpoint
	Metrics *metrics.Metrics
}

// NewServer creates a new Server with default mux
func NewServer(service *inspection.Service, opts Options) *Server {
	return NewServerWithMux(service, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *inspection.Service, opts Options, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: opts.BasicAuth,
		metrics:   opts.Metrics,
		mux:       mux,
	}
	s.registerRoutes()

	var h http.Handler = corsMiddleware(s.mux)
	if opts.RateLimit > 0 {
		h = rateLimitMiddleware(opts.RateLimit, opts.RateBurst, h)
	}
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	h = accessLogMiddleware(h)
	s.handler = requestIDMiddleware(h)

	return s
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Comparisons
	s.mux.HandleFunc("POST /api/compare-images", s.requireAuth(s.handleCompareImages))
	s.mux.HandleFunc("POST /api/reports/compare", s.requireAuth(s.handleCompareReports))
	s.mux.HandleFunc("POST /api/submissions", s.requireAuth(s.handleSubmit))

	// Inspections
	s.mux.HandleFunc("GET /api/inspections/{id}/images/{type}/diff", s.requireAuth(s.handleGetDiffImage))
	s.mux.HandleFunc("GET /api/inspections/{id}/images", s.requireAuth(s.handleListImages))
	s.mux.HandleFunc("POST /api/inspections/{id}/images", s.requireAuth(s.handleUploadImage))
	s.mux.HandleFunc("POST /api/inspections", s.requireAuth(s.handleStartInspection))

	// References
	s.mux.HandleFunc("PUT /api/references/{type}", s.requireAuth(s.handlePutReference))

	// Operational endpoints
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
