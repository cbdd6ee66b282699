package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	psync "github.com/dsiportal/placement-sync/internal/sync"
)

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "credentials", err: session.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "unknown kind", err: fmt.Errorf("%w: guest", session.ErrUnknownKind), want: http.StatusBadRequest},
		{name: "notification not found", err: notify.ErrNotFound, want: http.StatusNotFound},
		{name: "invalid draft", err: notify.ErrInvalidDraft, want: http.StatusBadRequest},
		{name: "cancelled", err: notify.ErrCancelled, want: http.StatusConflict},
		{name: "duplicate", err: portal.ErrDuplicate, want: http.StatusConflict},
		{name: "document not loaded", err: psync.ErrNotLoaded, want: http.StatusServiceUnavailable},
		{name: "unavailable", err: &psync.Error{Kind: psync.KindUnavailable, Message: "down"}, want: http.StatusServiceUnavailable},
		{name: "permission", err: fmt.Errorf("persist: %w", &psync.Error{Kind: psync.KindPermissionDenied, Message: "no"}), want: http.StatusForbidden},
		{name: "timeout", err: &psync.Error{Kind: psync.KindTimeout, Message: "slow"}, want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var dst struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
	assert.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "x", dst.Title)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bogus":1}`))
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, notify.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"notification not found"}`, rec.Body.String())
}
