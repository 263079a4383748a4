package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "streamcast/internal/api/http"
	"streamcast/internal/app"
	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
	"streamcast/internal/engine/anacrolix"
	"streamcast/internal/metrics"
	mongorepo "streamcast/internal/repository/mongo"
	"streamcast/internal/session"
	"streamcast/internal/subtitles"
	"streamcast/internal/telemetry"
	"streamcast/internal/transport/native"
	"streamcast/internal/transport/remote"
)

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "streamcast")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "streamcast"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("transport", cfg.Transport),
		slog.String("backendURL", cfg.BackendURL),
		slog.String("dataDir", cfg.DataDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind := domain.TransportNative
	if cfg.Transport == string(domain.TransportRemote) {
		kind = domain.TransportRemote
	}

	// The native engine only exists when selected; the remote transport is
	// always wired so a config flip needs no rebuild.
	var engine *anacrolix.Engine
	var videoSource ports.VideoSource
	transports := make(map[domain.TransportKind]ports.Transport)
	if kind == domain.TransportNative {
		engine, err = anacrolix.New(anacrolix.Config{
			DataDir:           cfg.DataDir,
			AdvertiseURL:      cfg.AdvertiseURL,
			MaxConns:          cfg.MaxConns,
			MaxDownloadRate:   cfg.MaxDownloadRate,
			MaxUploadRate:     cfg.MaxUploadRate,
			MemoryBufferBytes: cfg.MemoryBufferBytes,
		}, logger)
		if err != nil {
			logger.Error("engine init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		videoSource = engine
	}
	transports[domain.TransportNative] = native.NewEventDrivenTransport(engine, logger)
	transports[domain.TransportRemote] = remote.NewPollTransport(
		remote.NewClient(cfg.BackendURL), logger,
		remote.WithPollInterval(cfg.PollInterval),
	)

	// The notifier is bound after the HTTP server exists; until then
	// notifications are dropped.
	var notifySink func(session.Notification)
	controller := session.NewController(kind, transports, logger,
		session.WithNotifier(func(n session.Notification) {
			if notifySink != nil {
				notifySink(n)
			}
		}))

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}
	if videoSource != nil {
		serverOpts = append(serverOpts, apihttp.WithVideoSource(videoSource))
	}

	// Watch history is optional; without a Mongo URI the endpoints report
	// not configured.
	var disconnectMongo func()
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI,
			options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			cancel()
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			cancel()
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		positions := mongorepo.NewPositionRepository(mongoClient, cfg.MongoDatabase)
		if err := positions.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		cancel()
		serverOpts = append(serverOpts, apihttp.WithPositionStore(positions))
		disconnectMongo = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	}

	if cfg.SubtitleAPIURL != "" {
		provider := subtitles.NewProvider(cfg.SubtitleAPIURL, cfg.SubtitleAPIKey)
		var svcOpts []subtitles.ServiceOption
		if cfg.RedisAddr != "" {
			redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			svcOpts = append(svcOpts, subtitles.WithCache(subtitles.NewRedisCache(redisClient)))
		}
		serverOpts = append(serverOpts, apihttp.WithSubtitles(subtitles.NewService(provider, logger, svcOpts...)))
	}

	handler := apihttp.NewServer(controller, serverOpts...)

	// Push every snapshot and failure notification to WebSocket clients.
	unsubscribe := controller.Subscribe(handler.BroadcastSnapshot)
	defer unsubscribe()
	notifySink = handler.BroadcastNotification

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := controller.Stop(shutdownCtx); err != nil {
		logger.Warn("session stop error", slog.String("error", err.Error()))
	}
	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close error", slog.String("error", err.Error()))
		}
	}
	if disconnectMongo != nil {
		disconnectMongo()
	}

	logger.Info("server stopped")
}
