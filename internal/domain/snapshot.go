package domain

import "math"

// EtaUnknown marks a snapshot whose transport did not supply an estimate.
// The controller derives one via EstimateEta when the total size is known.
const EtaUnknown = -1

// StatusSnapshot is an immutable point-in-time status record for a session.
// Transports replace it wholesale on every update, never mutate it in place.
type StatusSnapshot struct {
	Phase           Phase   `json:"phase"`
	Progress        float64 `json:"progress"`
	DownloadRate    int64   `json:"downloadSpeed"`
	UploadRate      int64   `json:"uploadSpeed"`
	Peers           int     `json:"peers"`
	EtaSeconds      float64 `json:"eta"`
	Message         string  `json:"message"`
	ErrorDetail     string  `json:"errorDetail,omitempty"`
	StreamURL       string  `json:"streamUrl,omitempty"`
	DurationSeconds float64 `json:"duration,omitempty"`
	TotalBytes      int64   `json:"totalBytes,omitempty"`
}

// FiniteEta returns the eta and whether it is a usable finite value.
func (s StatusSnapshot) FiniteEta() (float64, bool) {
	if s.EtaSeconds < 0 || math.IsInf(s.EtaSeconds, 1) || math.IsNaN(s.EtaSeconds) {
		return 0, false
	}
	return s.EtaSeconds, true
}

// EstimateEta derives seconds-to-completion from partial progress. Returns
// +Inf when the download rate is zero, never a negative number.
func EstimateEta(s StatusSnapshot, totalBytes int64) float64 {
	if s.DownloadRate == 0 {
		return math.Inf(1)
	}
	remaining := float64(totalBytes) * (1 - s.Progress)
	if remaining < 0 {
		remaining = 0
	}
	return remaining / float64(s.DownloadRate)
}
