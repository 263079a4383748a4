package simulator

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	defaultMaxAge        = 30 * time.Minute
)

// GarbageCollector periodically purges sessions that exceeded the maximum
// age, regardless of phase. Reaping is equivalent to a forced stop.
type GarbageCollector struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
}

type GCOption func(*GarbageCollector)

func WithSweepInterval(d time.Duration) GCOption {
	return func(gc *GarbageCollector) {
		if d > 0 {
			gc.interval = d
		}
	}
}

func WithMaxSessionAge(d time.Duration) GCOption {
	return func(gc *GarbageCollector) {
		if d > 0 {
			gc.maxAge = d
		}
	}
}

func NewGarbageCollector(store *Store, logger *slog.Logger, opts ...GCOption) *GarbageCollector {
	gc := &GarbageCollector{
		store:    store,
		interval: defaultSweepInterval,
		maxAge:   defaultMaxAge,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(gc)
	}
	return gc
}

// Run sweeps until the context is cancelled. It never blocks a status
// request; the store's lock is held only for the scan itself.
func (gc *GarbageCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := gc.store.Sweep(gc.maxAge); n > 0 {
				gc.logger.Info("reaped stale sessions", "count", n, "maxAge", gc.maxAge)
			}
		}
	}
}
