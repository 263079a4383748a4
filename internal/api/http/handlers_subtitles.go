package apihttp

import (
	"net/http"
	"strings"
)

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "subtitle search not configured")
		return
	}
	// Subtitles are only useful alongside playback; gate on the same
	// phase check as the video endpoint.
	if _, snap, ok := s.sessions.Status(); !ok || !snap.Phase.Playable() {
		writeError(w, http.StatusConflict, "not_ready", "stream is not ready")
		return
	}

	contentID := strings.TrimSpace(r.URL.Query().Get("contentId"))
	if contentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "contentId is required")
		return
	}
	language := strings.TrimSpace(r.URL.Query().Get("lang"))
	if language == "" {
		language = "en"
	}

	candidates, err := s.subtitles.Search(r.Context(), contentID, language)
	if err != nil {
		writeError(w, http.StatusBadGateway, "subtitle_provider_error", "subtitle search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subtitles": candidates, "count": len(candidates)})
}
