package domain

import (
	"path/filepath"
	"strings"
)

// VideoCandidate describes one playable file inside a multi-file resource.
type VideoCandidate struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}

var playableExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
	".ts":   true,
}

// Playable reports whether the file looks like a video by extension.
func (c VideoCandidate) Playable() bool {
	return playableExtensions[strings.ToLower(filepath.Ext(c.Name))]
}

// PickLargestPlayable returns the index of the largest playable file, the
// default selection when the caller never picks one explicitly.
func PickLargestPlayable(files []VideoCandidate) (int, bool) {
	best, found := 0, false
	var bestSize int64 = -1
	for _, f := range files {
		if !f.Playable() {
			continue
		}
		if f.SizeBytes > bestSize {
			best, bestSize, found = f.Index, f.SizeBytes, true
		}
	}
	return best, found
}
