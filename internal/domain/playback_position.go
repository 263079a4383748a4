package domain

import "time"

// PlaybackPosition is the append-only watch progress record keyed by the
// external content identifier (e.g. an IMDb id).
type PlaybackPosition struct {
	ContentID string    `json:"contentId"`
	Title     string    `json:"title,omitempty"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	UpdatedAt time.Time `json:"updatedAt"`
}
