package backendhttp

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"streamcast/internal/metrics"
)

// observedWriter tracks what a handler wrote for the log and metric
// middleware below.
type observedWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func observe(w http.ResponseWriter) *observedWriter {
	return &observedWriter{ResponseWriter: w, status: http.StatusOK}
}

func (ow *observedWriter) WriteHeader(code int) {
	ow.status = code
	ow.ResponseWriter.WriteHeader(code)
}

func (ow *observedWriter) Write(b []byte) (int, error) {
	n, err := ow.ResponseWriter.Write(b)
	ow.bytes += n
	return n, err
}

// corsMiddleware reflects any origin. The backend is an internal service
// proxied by the controller, so it has no origin whitelist of its own.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		ow := observe(w)

		next.ServeHTTP(ow, r)

		level := slog.LevelInfo
		switch {
		case ow.status >= 500:
			level = slog.LevelError
		case ow.status >= 400:
			level = slog.LevelWarn
		case r.URL.Path == "/health":
			level = slog.LevelDebug
		}
		logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ow.status),
			slog.Int("bytes", ow.bytes),
			slog.Int64("durationMs", time.Since(began).Milliseconds()),
		)
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
		ow := observe(w)
		next.ServeHTTP(ow, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ow.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
	})
}
