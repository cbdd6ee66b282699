// Package common provides shared HTTP helpers for the API handlers.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	psync "github.com/dsiportal/placement-sync/internal/sync"
)

// maxBodySize bounds request bodies
const maxBodySize = 1 << 20

// WriteJSONResponse writes data as JSON with the given status code
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, map[string]string{"error": message}, statusCode)
}

// WriteError writes err with the status code matching its kind
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorResponse(w, err.Error(), StatusForError(err))
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown fields
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// StatusForError maps domain errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, notify.ErrNotFound), errors.Is(err, portal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notify.ErrInvalidDraft), errors.Is(err, session.ErrUnknownKind),
		errors.Is(err, portal.ErrInvalid), errors.Is(err, portal.ErrInvalidShortlist):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrDuplicate), errors.Is(err, notify.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, psync.ErrNotLoaded):
		return http.StatusServiceUnavailable
	}

	switch psync.KindOf(err) {
	case psync.KindUnavailable:
		return http.StatusServiceUnavailable
	case psync.KindPermissionDenied:
		return http.StatusForbidden
	case psync.KindNotFound:
		return http.StatusNotFound
	case psync.KindTimeout:
		return http.StatusGatewayTimeout
	case psync.KindInvalidDocument:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
