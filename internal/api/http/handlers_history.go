package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"streamcast/internal/domain"
)

func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.positions == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch history not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		limit = n
	}

	positions, err := s.positions.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list watch history")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleWatchHistoryByID(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch history not configured")
		return
	}

	contentID := strings.TrimPrefix(r.URL.Path, "/watch-history/")
	if contentID == "" || strings.Contains(contentID, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		pos, err := s.positions.Get(r.Context(), contentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no watch position found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get watch position")
			return
		}
		writeJSON(w, http.StatusOK, pos)

	case http.MethodPut:
		var body struct {
			Position float64 `json:"position"`
			Duration float64 `json:"duration"`
			Title    string  `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
			return
		}
		if body.Position < 0 || body.Duration < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "position and duration must be non-negative")
			return
		}

		pos := domain.PlaybackPosition{
			ContentID: contentID,
			Title:     body.Title,
			Position:  body.Position,
			Duration:  body.Duration,
		}
		if err := s.positions.Upsert(r.Context(), pos); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save watch position")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := s.positions.Delete(r.Context(), contentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no watch position found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete watch position")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
