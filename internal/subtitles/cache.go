package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"streamcast/internal/domain"
)

// Cache stores search results keyed by contentID and language.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.SubtitleCandidate, bool)
	Set(ctx context.Context, key string, candidates []domain.SubtitleCandidate, ttl time.Duration)
}

type memoryEntry struct {
	candidates []domain.SubtitleCandidate
	expiresAt  time.Time
}

// MemoryCache is a process-local TTL cache, the default when no Redis
// address is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]domain.SubtitleCandidate, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.candidates, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, candidates []domain.SubtitleCandidate, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{candidates: candidates, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// RedisCache shares search results across instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func redisKey(key string) string {
	return "subtitles:" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.SubtitleCandidate, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, false
		}
		return nil, false
	}
	var candidates []domain.SubtitleCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}

func (c *RedisCache) Set(ctx context.Context, key string, candidates []domain.SubtitleCandidate, ttl time.Duration) {
	raw, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisKey(key), raw, ttl)
}
