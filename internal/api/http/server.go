package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"streamcast/internal/domain"
	domainports "streamcast/internal/domain/ports"
	"streamcast/internal/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionService is the surface of the session controller the HTTP layer
// needs. Narrowed to an interface so handlers are testable with a fake.
type SessionService interface {
	Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error)
	Retry(ctx context.Context) (domain.StreamID, error)
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Status() (domain.StreamSession, domain.StatusSnapshot, bool)
	Active() (domain.StreamSession, bool)
	Subscribe(fn domainports.SnapshotFunc) func()
	VideoCandidates(ctx context.Context) ([]domain.VideoCandidate, error)
	SelectFile(ctx context.Context, index int) error
}

type SubtitleSearcher interface {
	Search(ctx context.Context, contentID, language string) ([]domain.SubtitleCandidate, error)
}

type Server struct {
	sessions       SessionService
	video          domainports.VideoSource
	positions      domainports.PositionStore
	subtitles      SubtitleSearcher
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithVideoSource(src domainports.VideoSource) ServerOption {
	return func(s *Server) { s.video = src }
}

func WithPositionStore(store domainports.PositionStore) ServerOption {
	return func(s *Server) { s.positions = store }
}

func WithSubtitles(search SubtitleSearcher) ServerOption {
	return func(s *Server) { s.subtitles = search }
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(sessions SessionService, opts ...ServerOption) *Server {
	s := &Server{sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream/start", s.handleStart)
	mux.HandleFunc("/stream/retry", s.handleRetry)
	mux.HandleFunc("/stream/status", s.handleStatus)
	mux.HandleFunc("/stream/stop", s.handleStop)
	mux.HandleFunc("/stream/pause", s.handlePause)
	mux.HandleFunc("/stream/resume", s.handleResume)
	mux.HandleFunc("/stream/files", s.handleFiles)
	mux.HandleFunc("/stream/files/select", s.handleSelectFile)
	mux.HandleFunc("/stream/video", s.handleVideo)
	mux.HandleFunc("/stream/subtitles", s.handleSubtitles)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/watch-history", s.handleWatchHistory)
	mux.HandleFunc("/watch-history/", s.handleWatchHistoryByID)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "streamcast",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && !strings.HasPrefix(p, "/stream/video")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// BroadcastSnapshot pushes one status snapshot to all WebSocket clients.
// Wire it as a controller subscriber.
func (s *Server) BroadcastSnapshot(snap domain.StatusSnapshot) {
	if s.wsHub != nil {
		s.wsHub.Broadcast("status", newStatusPayload(snap))
	}
}

// BroadcastNotification pushes a failure notification to all WebSocket
// clients. Wire it as the controller's notifier.
func (s *Server) BroadcastNotification(note session.Notification) {
	if s.wsHub != nil {
		s.wsHub.Broadcast("notification", note)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.wsHub.attach(conn)
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
