package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"streamcast/internal/domain"
)

type startStreamRequest struct {
	Source    string `json:"source"`
	Quality   string `json:"quality,omitempty"`
	FileIndex *int   `json:"fileIndex,omitempty"`
}

type statusPayload struct {
	Phase         domain.Phase `json:"phase"`
	Progress      float64      `json:"progress"`
	DownloadSpeed int64        `json:"downloadSpeed"`
	UploadSpeed   int64        `json:"uploadSpeed"`
	Peers         int          `json:"peers"`
	Eta           *float64     `json:"eta"`
	Message       string       `json:"message,omitempty"`
	ErrorDetail   string       `json:"errorDetail,omitempty"`
	StreamURL     string       `json:"streamUrl,omitempty"`
	Duration      float64      `json:"duration,omitempty"`
}

type sessionResponse struct {
	SessionID domain.StreamID      `json:"sessionId"`
	Source    string               `json:"source,omitempty"`
	Transport domain.TransportKind `json:"transport,omitempty"`
	CreatedAt time.Time            `json:"createdAt,omitempty"`
	Status    statusPayload        `json:"status"`
}

// newStatusPayload converts a snapshot into its wire form. A non-finite
// eta is encoded as null rather than a sentinel.
func newStatusPayload(snap domain.StatusSnapshot) statusPayload {
	p := statusPayload{
		Phase:         snap.Phase,
		Progress:      snap.Progress,
		DownloadSpeed: snap.DownloadRate,
		UploadSpeed:   snap.UploadRate,
		Peers:         snap.Peers,
		Message:       snap.Message,
		ErrorDetail:   snap.ErrorDetail,
		StreamURL:     snap.StreamURL,
		Duration:      snap.DurationSeconds,
	}
	if eta, ok := snap.FiniteEta(); ok {
		p.Eta = &eta
	}
	return p
}

func newSessionResponse(sess domain.StreamSession, snap domain.StatusSnapshot) sessionResponse {
	return sessionResponse{
		SessionID: sess.ID,
		Source:    sess.Source,
		Transport: sess.Transport,
		CreatedAt: sess.CreatedAt,
		Status:    newStatusPayload(snap),
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "invalid_source", "source is required")
		return
	}

	opts := domain.DefaultStartOptions()
	if req.Quality != "" {
		opts.Quality = req.Quality
	}
	if req.FileIndex != nil {
		opts.FileIndex = *req.FileIndex
	}

	id, err := s.sessions.Start(r.Context(), req.Source, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sess, snap, _ := s.sessions.Status()
	if sess.ID == "" {
		sess.ID = id
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess, snap))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, err := s.sessions.Retry(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sess, snap, _ := s.sessions.Status()
	if sess.ID == "" {
		sess.ID = id
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess, snap))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, snap, ok := s.sessions.Status()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no stream session")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess, snap))
}

// handleStream covers the bare /stream path, DELETE only.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.stopSession(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.stopSession(w, r)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.sessions.Pause(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.sessions.Resume(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	files, err := s.sessions.VideoCandidates(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FileIndex *int `json:"fileIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileIndex == nil || *req.FileIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
		return
	}

	if err := s.sessions.SelectFile(r.Context(), *req.FileIndex); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"fileIndex": *req.FileIndex})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
