package backendhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"streamcast/internal/domain"
	"streamcast/internal/metrics"
)

type startRequest struct {
	Source    string `json:"source"`
	Quality   string `json:"quality"`
	FileIndex *int   `json:"fileIndex"`
}

type startResponse struct {
	SessionID string  `json:"sessionId"`
	Phase     string  `json:"phase"`
	Progress  float64 `json:"progress"`
	Eta       float64 `json:"eta"`
	Message   string  `json:"message"`
}

type statusResponse struct {
	StreamID      string  `json:"streamId"`
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	Eta           float64 `json:"eta"`
	Message       string  `json:"message"`
	StreamURL     string  `json:"streamUrl,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	DownloadSpeed int64   `json:"downloadSpeed,omitempty"`
	Peers         int     `json:"peers,omitempty"`
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Quality   string    `json:"quality"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	fileIndex := -1
	if req.FileIndex != nil {
		fileIndex = *req.FileIndex
	}

	sess, err := s.store.Create(req.Source, req.Quality, fileIndex)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	snap, err := s.store.Snapshot(sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	metrics.SimulatorSessions.Inc()

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID: sess.ID,
		Phase:     string(snap.Phase),
		Progress:  snap.Progress,
		Eta:       snap.EtaSeconds,
		Message:   snap.Message,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/stream/status/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	snap, err := s.store.Snapshot(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		StreamID:      id,
		Status:        string(snap.Phase),
		Progress:      snap.Progress,
		Eta:           snap.EtaSeconds,
		Message:       snap.Message,
		StreamURL:     snap.StreamURL,
		Duration:      snap.DurationSeconds,
		DownloadSpeed: snap.DownloadRate,
		Peers:         snap.Peers,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/stream/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	if err := s.store.Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.SimulatorSessions.Dec()
	s.logger.Info("session stopped", "id", id)

	writeJSON(w, http.StatusOK, statusResponse{
		StreamID: id,
		Status:   string(domain.PhaseStopped),
		Message:  "Stream stopped",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	sessions := s.store.List()
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		snap, err := s.store.Snapshot(sess.ID)
		if err != nil {
			continue
		}
		out = append(out, sessionSummary{
			ID:        sess.ID,
			Status:    string(snap.Phase),
			CreatedAt: sess.CreatedAt,
			Quality:   sess.Quality,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out, "count": len(out)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleManifest serves a minimal HLS master playlist once the session is
// ready. Segment URIs are synthetic; the simulated backend never transfers
// real media.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/streams/")
	id, file, ok := strings.Cut(rest, "/")
	if !ok || file != "master.m3u8" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	snap, err := s.store.Snapshot(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !snap.Phase.Playable() {
		writeError(w, http.StatusConflict, "not_ready", fmt.Sprintf("stream not ready, phase is %s", snap.Phase))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n/streams/%s/720p/index.m3u8\n", id)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
