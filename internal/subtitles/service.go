package subtitles

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"streamcast/internal/domain"
	"streamcast/internal/domain/ports"
	"streamcast/internal/metrics"
)

const defaultCacheTTL = time.Hour

// Service fronts the provider with a cache and collapses concurrent
// searches for the same key into a single upstream request.
type Service struct {
	provider ports.SubtitleProvider
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

type ServiceOption func(*Service)

func WithCache(cache Cache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

func NewService(provider ports.SubtitleProvider, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		cache:    NewMemoryCache(),
		ttl:      defaultCacheTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(contentID, language string) string {
	return contentID + ":" + language
}

func (s *Service) Search(ctx context.Context, contentID, language string) ([]domain.SubtitleCandidate, error) {
	key := cacheKey(contentID, language)
	if candidates, ok := s.cache.Get(ctx, key); ok {
		metrics.SubtitleCacheHits.Inc()
		return candidates, nil
	}
	metrics.SubtitleCacheMisses.Inc()

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		candidates, err := s.provider.Search(ctx, contentID, language)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, candidates, s.ttl)
		return candidates, nil
	})
	if err != nil {
		s.logger.Warn("subtitle search failed", "contentId", contentID, "language", language, "error", err)
		return nil, err
	}
	return result.([]domain.SubtitleCandidate), nil
}
