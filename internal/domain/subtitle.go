package domain

// SubtitleCandidate is one downloadable subtitle file offered by the
// external subtitle provider.
type SubtitleCandidate struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}
