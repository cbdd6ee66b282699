package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

// portalRouter mounts a handler answering status on a few portal-shaped routes
func portalRouter(mw func(http.Handler) http.Handler, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(mw)
	h := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Post("/v1/notifications/{id}/read", h)
	r.Get("/v1/jobs", h)
	r.Get("/health", h)
	r.Get("/readiness", h)
	return r
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestPassThroughWithoutProviders(t *testing.T) {
	t.Parallel()

	metricsMW, err := MetricsMiddleware(nil)
	require.NoError(t, err)

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"tracing": TracingMiddleware(nil),
		"metrics": metricsMW,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Portal", "1")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte("ok"))
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/notifications", nil))
			assert.Equal(t, http.StatusCreated, rr.Code)
			assert.Equal(t, "1", rr.Header().Get("X-Portal"))
			assert.Equal(t, "ok", rr.Body.String())
		})
	}
}

func TestTracingMiddleware_Span(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/1700000000000/read", nil)
	req.Header.Set("User-Agent", strings.Repeat("u", MaxUserAgentLength+10))
	portalRouter(TracingMiddleware(tp), http.StatusNoContent).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /v1/notifications/{id}/read", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := spanAttrs(span)
	assert.Equal(t, "/v1/notifications/{id}/read", attrs[semconv.HTTPRouteKey].AsString())
	assert.Equal(t, "/v1/notifications/1700000000000/read", attrs[semconv.URLPathKey].AsString())
	assert.Equal(t, int64(http.StatusNoContent), attrs[semconv.HTTPResponseStatusCodeKey].AsInt64())
	assert.Len(t, attrs[semconv.UserAgentOriginalKey].AsString(), MaxUserAgentLength)
}

func TestTracingMiddleware_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   codes.Code
		desc   string
	}{
		{status: http.StatusOK, code: codes.Ok},
		{status: http.StatusUnauthorized, code: codes.Unset},
		{status: http.StatusServiceUnavailable, code: codes.Error, desc: http.StatusText(http.StatusServiceUnavailable)},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			exporter, tp := newTestTracerProvider(t)
			portalRouter(TracingMiddleware(tp), tt.status).
				ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.code, spans[0].Status.Code)
			assert.Equal(t, tt.desc, spans[0].Status.Description)
		})
	}
}

func TestTracingMiddleware_UnknownRoute(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	h := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/icons/logo.png", nil))

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET unknown_route", spans[0].Name())
}

func TestTracingMiddleware_ContinuesRemoteTrace(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	parentCtx, parent := tp.Tracer("caller").Start(context.Background(), "caller")
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	propagation.TraceContext{}.Inject(parentCtx, propagation.HeaderCarrier(req.Header))
	parent.End()

	// extract up front so the result does not depend on the global propagator
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			TracingMiddleware(tp)(next).ServeHTTP(w, r.WithContext(ctx))
		})
	}
	portalRouter(mw, http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	var server sdktrace.ReadOnlySpan
	for _, s := range exporter.GetSpans().Snapshots() {
		if s.SpanKind() == trace.SpanKindServer {
			server = s
		}
	}
	require.NotNil(t, server)
	assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), server.Parent().SpanID())
}

func TestHTTPMiddleware_SkipsProbes(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metricsMW, err := MetricsMiddleware(mp)
	require.NoError(t, err)

	for _, path := range []string{"/health", "/readiness"} {
		rr := httptest.NewRecorder()
		portalRouter(func(next http.Handler) http.Handler {
			return TracingMiddleware(tp)(metricsMW(next))
		}, http.StatusOK).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Empty(t, exporter.GetSpans())
	assert.Empty(t, collectScope(t, reader, HTTPInstrumentationName))
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewHTTPMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	router := portalRouter(metrics.Middleware, http.StatusNoContent)
	for _, id := range []string{"1", "2"} {
		router.ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodPost, "/v1/notifications/"+id+"/read", nil))
	}

	found := collectScope(t, reader, HTTPInstrumentationName)
	require.Contains(t, found, "placement_sync_http_requests_total")
	require.Contains(t, found, "placement_sync_http_request_duration_seconds")
	require.Contains(t, found, "placement_sync_http_active_requests")

	sum, ok := found["placement_sync_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1, "ids must collapse into one route")
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(2), dp.Value)
	route, _ := dp.Attributes.Value("route")
	assert.Equal(t, "/v1/notifications/{id}/read", route.AsString())
	status, _ := dp.Attributes.Value("status_code")
	assert.Equal(t, "204", status.AsString())

	active, ok := found["placement_sync_http_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Zero(t, active.DataPoints[0].Value)
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Mozilla/5.0", truncateUserAgent("Mozilla/5.0"))
	exact := strings.Repeat("a", MaxUserAgentLength)
	assert.Equal(t, exact, truncateUserAgent(exact))
	assert.Equal(t, exact, truncateUserAgent(exact+"overflow"))
}
