package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

// credentialMessage is deliberately uniform: callers must not be able
// to tell a revoked token from an expired or unknown one.
const credentialMessage = "invalid or expired credential"

// writeError maps domain errors onto HTTP statuses. Every credential
// failure collapses into one generic 401 body.
func writeError(w http.ResponseWriter, l *logger.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, model.ErrMalformedToken),
		errors.Is(err, model.ErrInvalidRefreshToken),
		errors.Is(err, model.ErrExpiredRefreshToken),
		errors.Is(err, model.ErrExpiredSession),
		errors.Is(err, model.ErrReuseDetected),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrExpiredVerificationCode):
		status = http.StatusUnauthorized
		message = credentialMessage
	case errors.Is(err, model.ErrTooManyFailedAttempts):
		status = http.StatusTooManyRequests
		message = "too many failed attempts"
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, model.ErrDuplicate):
		status = http.StatusConflict
		message = "conflict"
	default:
		l.Error("request failed", "error", err)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
