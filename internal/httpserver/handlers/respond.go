package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps the failure taxonomy to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return http.StatusUnauthorized, "missing_identity"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, domain.ErrStaleSuggestion):
		return http.StatusConflict, "stale_suggestion"
	case errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict, "request_in_flight"
	case errors.Is(err, domain.ErrManualUnavailable):
		return http.StatusConflict, "manual_unavailable"
	case errors.Is(err, domain.ErrEmptyDraft):
		return http.StatusUnprocessableEntity, "empty_draft"
	case domain.IsInfrastructural(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status, code := errorStatus(err)
	msg := domain.UserMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.String("code", code), logger.Error(err))
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
