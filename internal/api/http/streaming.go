package apihttp

import (
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// readahead for sequential playback. Large enough to keep the player's
// buffer ahead of the network, small enough not to fight seeks.
const videoReadahead = 16 << 20

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.video == nil {
		writeError(w, http.StatusServiceUnavailable, "transport_unavailable", "video source not configured")
		return
	}
	if _, snap, ok := s.sessions.Status(); !ok || !snap.Phase.Playable() {
		writeError(w, http.StatusConflict, "not_ready", "stream is not ready")
		return
	}

	reader, name, _, err := s.video.OpenVideo(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer reader.Close()

	// Do NOT SetResponsive here: the responsive reader returns EOF when
	// piece data isn't available yet, which truncates the stream. Let the
	// reader block until pieces arrive and keep a readahead window so
	// sequential playback stays ahead of the player.
	reader.SetContext(r.Context())
	reader.SetReadahead(videoReadahead)

	ext := strings.ToLower(path.Ext(name))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fallbackContentType(ext)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	// Close the connection after streaming to prevent keep-alive from
	// holding the reader open after the player stops playback.
	w.Header().Set("Connection", "close")

	http.ServeContent(w, r, name, time.Time{}, reader)
}

func fallbackContentType(ext string) string {
	switch ext {
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".mov", ".m4v":
		return "video/mp4"
	case ".ts":
		return "video/mp2t"
	case ".webm":
		return "video/webm"
	default:
		return "video/mp4"
	}
}
