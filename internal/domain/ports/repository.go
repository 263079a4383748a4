package ports

import (
	"context"

	"streamcast/internal/domain"
)

// PositionStore persists playback positions keyed by content identifier.
type PositionStore interface {
	Upsert(ctx context.Context, p domain.PlaybackPosition) error
	Get(ctx context.Context, contentID string) (domain.PlaybackPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.PlaybackPosition, error)
	Delete(ctx context.Context, contentID string) error
}

// SubtitleProvider searches an external catalogue for subtitle candidates.
type SubtitleProvider interface {
	Search(ctx context.Context, contentID string, language string) ([]domain.SubtitleCandidate, error)
}
