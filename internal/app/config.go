package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	// Transport selection: "native" runs the in-process engine,
	// "remote" polls the backend at BackendURL.
	Transport    string
	BackendURL   string
	PollInterval time.Duration

	// Native engine.
	DataDir         string
	AdvertiseURL    string
	MaxConns        int
	MaxDownloadRate int64
	MaxUploadRate   int64

	// MemoryBufferBytes, when positive, buffers pieces in memory and
	// spills evicted ones into DataDir. Zero writes straight to disk.
	MemoryBufferBytes int64

	// Watch history. Empty URI disables persistence.
	MongoURI      string
	MongoDatabase string

	// Subtitle search. Empty URL disables it; empty RedisAddr falls back
	// to the in-process cache.
	SubtitleAPIURL string
	SubtitleAPIKey string
	RedisAddr      string
}

// SimulatorConfig configures the standalone poll backend.
type SimulatorConfig struct {
	HTTPAddr      string
	BaseURL       string
	LogLevel      string
	LogFormat     string
	SweepInterval time.Duration
	MaxSessionAge time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		Transport:          strings.ToLower(getEnv("STREAM_TRANSPORT", "native")),
		BackendURL:         getEnv("STREAM_BACKEND_URL", "http://localhost:8090"),
		PollInterval:       getEnvDuration("STREAM_POLL_INTERVAL", 2*time.Second),
		DataDir:            getEnv("STREAM_DATA_DIR", "data"),
		AdvertiseURL:       getEnv("STREAM_ADVERTISE_URL", "http://localhost:8080"),
		MaxConns:           int(getEnvInt64("STREAM_MAX_CONNS", 0)),
		MaxDownloadRate:    getEnvInt64("STREAM_MAX_DOWNLOAD_RATE", 0),
		MaxUploadRate:      getEnvInt64("STREAM_MAX_UPLOAD_RATE", 0),
		MemoryBufferBytes:  getEnvInt64("STREAM_MEMORY_BUFFER_BYTES", 0),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "streamcast"),
		SubtitleAPIURL:     getEnv("SUBTITLE_API_URL", ""),
		SubtitleAPIKey:     getEnv("SUBTITLE_API_KEY", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
	}
}

func LoadSimulatorConfig() SimulatorConfig {
	addr := getEnv("HTTP_ADDR", ":8090")
	return SimulatorConfig{
		HTTPAddr:      addr,
		BaseURL:       getEnv("SIMULATOR_BASE_URL", "http://localhost"+addr),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		SweepInterval: getEnvDuration("GC_SWEEP_INTERVAL", time.Minute),
		MaxSessionAge: getEnvDuration("GC_MAX_SESSION_AGE", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
