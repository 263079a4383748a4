package domain

import (
	"fmt"
	"strings"
)

const sourceScheme = "magnet:"

// ValidateSource rejects descriptors that cannot possibly start a session.
// Rejection happens synchronously, before any transport is touched.
func ValidateSource(src string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("%w: empty source descriptor", ErrInvalidSource)
	}
	if !strings.HasPrefix(src, sourceScheme) {
		return fmt.Errorf("%w: descriptor must start with %q", ErrInvalidSource, sourceScheme)
	}
	return nil
}

// StartOptions tune a transport start call. Zero values mean "no cap".
type StartOptions struct {
	Quality         string `json:"quality,omitempty"`
	FileIndex       int    `json:"fileIndex"` // -1 selects the largest playable file.
	MaxDownloadRate int64  `json:"maxDownloadRate,omitempty"`
	MaxUploadRate   int64  `json:"maxUploadRate,omitempty"`
	MaxPeers        int    `json:"maxPeers,omitempty"`
}

// DefaultStartOptions returns the options used when a caller supplies none.
func DefaultStartOptions() StartOptions {
	return StartOptions{Quality: "720p", FileIndex: -1}
}
