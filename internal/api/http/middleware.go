package apihttp

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"streamcast/internal/metrics"
)

// statusRecorder captures the status code and byte count written by a
// handler so the logging and metrics middleware can report them.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += n
	return n, err
}

// Hijack forwards to the wrapped writer. gorilla/websocket needs the
// hijacker through the middleware chain for the /ws upgrade.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(allowedOrigins) == 0:
			// No whitelist configured: reflect the caller's origin, or
			// wildcard for non-browser clients.
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
		case originAllowed(allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		h := w.Header()
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Range")
		h.Set("Access-Control-Expose-Headers", "Content-Range, Accept-Ranges, Content-Length")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int("bytes", rec.written),
			slog.Int64("durationMs", time.Since(began).Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if q := strings.TrimSpace(r.URL.RawQuery); q != "" {
			attrs = append(attrs, slog.String("query", truncate(q, 180)))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(r.URL.Path, rec.status), "http request", attrs...)
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					slog.Any("error", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("clientIP", clientIP(r)),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		began := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
	})
}

// rateLimitMiddleware throttles all routes behind one token bucket and
// answers 429 when it is drained. The health check, metrics scrapes, and
// the video byte stream bypass the bucket; a player issuing range requests
// must never be throttled.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	bucket := rate.NewLimiter(rate.Limit(rps), burst)
	exempt := map[string]bool{
		"/health":       true,
		"/metrics":      true,
		"/stream/video": true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !bucket.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// normalizeRoute collapses paths into a bounded label set so per-request
// identifiers never explode metric cardinality.
func normalizeRoute(path string) string {
	switch {
	case path == "/metrics" || path == "/health" || path == "/ws":
		return path
	case path == "/stream" || strings.HasPrefix(path, "/stream/"):
		return path
	case path == "/watch-history":
		return path
	case strings.HasPrefix(path, "/watch-history/"):
		return "/watch-history/:id"
	default:
		return "/other"
	}
}

// requestLogLevel keeps high-frequency polling endpoints at debug so they
// do not drown the request log.
func requestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == "/health" || path == "/stream/status":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
