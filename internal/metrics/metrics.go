package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamcast",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "active_sessions",
		Help:      "Number of currently active stream sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "download_speed_bytes",
		Help:      "Current download speed of the active session in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "upload_speed_bytes",
		Help:      "Current upload speed of the active session in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "peers_connected",
		Help:      "Number of peers connected to the active session.",
	})

	SessionStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "session_starts_total",
		Help:      "Total session start attempts by transport and outcome.",
	}, []string{"transport", "outcome"})

	RetryAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "retry_attempts_total",
		Help:      "Total user-triggered retries of a failed session start.",
	})

	PollRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "poll_requests_total",
		Help:      "Total status polls issued by the remote transport.",
	})

	PollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "poll_failures_total",
		Help:      "Total failed status polls.",
	})

	SessionsReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "sessions_reaped_total",
		Help:      "Total simulated sessions removed by the garbage collector.",
	})

	SimulatorSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "simulator_sessions",
		Help:      "Number of sessions currently held by the simulated backend.",
	})

	SubtitleCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "subtitle_cache_hits_total",
		Help:      "Subtitle searches answered from cache.",
	})

	SubtitleCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcast",
		Name:      "subtitle_cache_misses_total",
		Help:      "Subtitle searches that reached the provider.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamcast",
		Name:      "ws_clients",
		Help:      "Number of connected WebSocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		SessionStartsTotal,
		RetryAttemptsTotal,
		PollRequestsTotal,
		PollFailuresTotal,
		SessionsReapedTotal,
		SimulatorSessions,
		SubtitleCacheHits,
		SubtitleCacheMisses,
		WSClients,
	)
}
