// Package api holds the shared HTTP response helpers: JSON envelopes and the
// domain-error to status-code mapping.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

// WriteJSON writes a JSON body with the given status
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error onto an HTTP status and a safe message.
// Internal errors are logged in full but surface as a generic 500.
func WriteError(log zerolog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteJSON(w, http.StatusBadRequest, errorBody(err))
	case errors.Is(err, domain.ErrUnauthorized):
		WriteJSON(w, http.StatusForbidden, errorBody(err))
	case errors.Is(err, domain.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, domain.ErrConflict):
		WriteJSON(w, http.StatusConflict, errorBody(err))
	default:
		log.Error().Err(err).Msg("Request failed")
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// Decode parses a JSON request body into dst, rejecting unknown fields
func Decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("malformed request body: %v", err)
	}
	return nil
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
