// The simulator is the standalone poll backend: sessions advance through
// the phase table as a function of wall-clock age, and a background sweep
// reaps sessions past their maximum age.
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

	backendhttp "streamcast/internal/api/backendhttp"
	"streamcast/internal/app"
	"streamcast/internal/metrics"
	"streamcast/internal/simulator"
)

func main() {
	cfg := app.LoadSimulatorConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	logger.Info("configuration loaded",
		slog.String("service", "streamcast-simulator"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("baseURL", cfg.BaseURL),
		slog.Duration("sweepInterval", cfg.SweepInterval),
		slog.Duration("maxSessionAge", cfg.MaxSessionAge),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := simulator.NewStore(cfg.BaseURL, logger)
	gc := simulator.NewGarbageCollector(store, logger,
		simulator.WithSweepInterval(cfg.SweepInterval),
		simulator.WithMaxSessionAge(cfg.MaxSessionAge),
	)
	go gc.Run(rootCtx)

	handler := backendhttp.NewServer(store, backendhttp.WithLogger(logger))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("simulator started", slog.String("addr", cfg.HTTPAddr))

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("simulator stopped")
}
