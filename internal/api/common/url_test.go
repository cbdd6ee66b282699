package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsiportal/placement-sync/internal/portal"
)

func TestIDParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    portal.ID
		wantErr string
	}{
		{path: "/1700000000000/read", want: "1700000000000"},
		{path: "/welcome-1/read", want: "welcome-1"},
		{path: "/a%2Fb/read", want: "a/b"},
		{path: "/%20%20/read", wantErr: "id cannot be empty"},
		{path: "/a%20b/read", wantErr: "id cannot contain whitespace"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			var got portal.ID
			var err error
			r := chi.NewRouter()
			r.Post("/{id}/read", func(_ http.ResponseWriter, req *http.Request) {
				got, err = IDParam(req, "id")
			})
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tt.path, nil))

			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    int
		wantErr string
	}{
		{path: "/jobs/7", want: 7},
		{path: "/jobs/007", want: 7},
		{path: "/jobs/-2", want: -2},
		{path: "/jobs/abc", wantErr: "jobID must be an integer"},
		{path: "/jobs/7.5", wantErr: "jobID must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			var got int
			var err error
			r := chi.NewRouter()
			r.Get("/jobs/{jobID}", func(_ http.ResponseWriter, req *http.Request) {
				got, err = IntParam(req, "jobID")
			})
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
