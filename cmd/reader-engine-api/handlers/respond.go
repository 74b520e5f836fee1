// Package handlers provides HTTP handlers for the reader engine API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// statusFor maps reader errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, viewer.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, viewer.ErrClosed):
		return http.StatusServiceUnavailable
	case domain.IsType(err, domain.ErrorTypeValidation):
		return http.StatusBadRequest
	case domain.IsType(err, domain.ErrorTypeLoad):
		return http.StatusUnprocessableEntity
	case domain.IsType(err, domain.ErrorTypeSelection), domain.IsCancelled(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail logs server-side failures and writes the mapped error.
func fail(w http.ResponseWriter, logger *observability.Logger, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err.Error())
}
