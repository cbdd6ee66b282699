package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dsiportal/placement-sync/internal/api"
	v1 "github.com/dsiportal/placement-sync/internal/api/v1"
	"github.com/dsiportal/placement-sync/internal/api/v1/mocks"
	"github.com/dsiportal/placement-sync/internal/status"
)

func newServer(t *testing.T, opts ...api.ServerOption) (http.Handler, *mocks.MockSyncService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	sync := mocks.NewMockSyncService(ctrl)
	svc := v1.Services{
		Sync:          sync,
		Notifications: mocks.NewMockNotificationService(ctrl),
		Sessions:      mocks.NewMockSessionService(ctrl),
	}
	return api.NewServer(svc, opts...), sync
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	// No expectations needed - health check doesn't call the engine
	server, _ := newServer(t)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		status         *status.SyncStatus
		expectedStatus int
		expectedBody   string
	}{
		{name: "ready", status: &status.SyncStatus{Phase: status.SyncPhaseReady}, expectedStatus: http.StatusOK, expectedBody: "ready"},
		{name: "connecting", status: &status.SyncStatus{Phase: status.SyncPhaseConnecting}, expectedStatus: http.StatusServiceUnavailable, expectedBody: "Connecting"},
		{name: "failed", status: &status.SyncStatus{Phase: status.SyncPhaseFailed}, expectedStatus: http.StatusServiceUnavailable, expectedBody: "Failed"},
		{name: "no status yet", status: nil, expectedStatus: http.StatusServiceUnavailable, expectedBody: "Uninitialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server, sync := newServer(t)
			sync.EXPECT().Status().Return(tt.status)

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var response api.VersionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Version)
	assert.NotEmpty(t, response.GoVersion)
	assert.NotEmpty(t, response.Platform)
}

func TestOptionalHandlers(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	assets := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset " + r.URL.Path))
	})

	bare, _ := newServer(t)
	for _, path := range []string{"/metrics", "/index.html"} {
		rr := httptest.NewRecorder()
		bare.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}

	full, _ := newServer(t, api.WithMetricsHandler(metrics), api.WithAssetsHandler(assets), api.WithMiddlewares(api.LoggingMiddleware))

	rr := httptest.NewRecorder()
	full.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rr.Body.String())

	rr = httptest.NewRecorder()
	full.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/styles.css", nil))
	assert.Equal(t, "asset /styles.css", rr.Body.String())

	rr = httptest.NewRecorder()
	full.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "API routes win over assets")
	assert.Contains(t, rr.Body.String(), "healthy")
}
