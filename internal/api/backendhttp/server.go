// Package backendhttp exposes the simulated remote streaming backend: the
// HTTP surface the poll transport talks to.
package backendhttp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamcast/internal/simulator"
)

type Server struct {
	store   *simulator.Store
	version string
	logger  *slog.Logger
	handler http.Handler
}

type ServerOption func(*Server)

func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(store *simulator.Store, opts ...ServerOption) *Server {
	s := &Server{
		store:   store,
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream/start", s.handleStart)
	mux.HandleFunc("/stream/status/", s.handleStatus)
	mux.HandleFunc("/stream/", s.handleDelete)
	mux.HandleFunc("/streams", s.handleList)
	mux.HandleFunc("/streams/", s.handleManifest)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.handler = recoveryMiddleware(s.logger, metricsMiddleware(corsMiddleware(loggingMiddleware(s.logger, mux))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func normalizeRoute(path string) string {
	switch {
	case path == "/metrics" || path == "/health":
		return path
	case path == "/stream/start":
		return "/stream/start"
	case strings.HasPrefix(path, "/stream/status/"):
		return "/stream/status/:id"
	case strings.HasPrefix(path, "/stream/"):
		return "/stream/:id"
	case path == "/streams":
		return "/streams"
	case strings.HasPrefix(path, "/streams/"):
		return "/streams/manifest"
	default:
		return "/other"
	}
}
