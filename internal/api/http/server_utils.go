package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"streamcast/internal/domain"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidSource) {
		writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if errors.Is(err, domain.ErrTransportUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "transport_unavailable", err.Error())
		return
	}
	if errors.Is(err, domain.ErrStartFailed) {
		writeError(w, http.StatusBadGateway, "start_failed", err.Error())
		return
	}
	if errors.Is(err, domain.ErrUnsupported) {
		writeError(w, http.StatusNotImplemented, "unsupported", err.Error())
		return
	}
	if errors.Is(err, domain.ErrEngine) {
		writeError(w, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
