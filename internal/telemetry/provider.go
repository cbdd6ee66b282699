package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderOption configures NewTracerProvider and NewMeterProvider
type ProviderOption func(*providerConfig)

// providerConfig is shared by the tracer and meter providers; each reads the
// fields it needs
type providerConfig struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	tracing        *TracingConfig
	metrics        *MetricsConfig
	registerer     prometheus.Registerer
}

func newProviderConfig(opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithService sets the service name and version reported with every span
// and metric
func WithService(name, version string) ProviderOption {
	return func(cfg *providerConfig) {
		if name != "" {
			cfg.serviceName = name
		}
		if version != "" {
			cfg.serviceVersion = version
		}
	}
}

// WithCollector sets the OTLP HTTP collector endpoint
func WithCollector(endpoint string, insecure bool) ProviderOption {
	return func(cfg *providerConfig) {
		if endpoint != "" {
			cfg.endpoint = endpoint
		}
		cfg.insecure = insecure
	}
}

// WithTracingConfig enables tracing as configured by tc
func WithTracingConfig(tc *TracingConfig) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.tracing = tc
	}
}

// WithMetricsConfig enables metrics as configured by mc
func WithMetricsConfig(mc *MetricsConfig) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.metrics = mc
	}
}

// WithPrometheusRegisterer sets the registry the Prometheus exporter registers with.
// Only used when the metrics exporter is "prometheus".
func WithPrometheusRegisterer(r prometheus.Registerer) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.registerer = r
	}
}

// fromConfig translates c into provider options
func fromConfig(c *Config) []ProviderOption {
	return []ProviderOption{
		WithService(c.GetServiceName(), c.GetServiceVersion()),
		WithCollector(c.GetEndpoint(), c.GetInsecure()),
		WithTracingConfig(c.Tracing),
		WithMetricsConfig(c.Metrics),
	}
}

// resource describes the service. resource.New avoids schema URL conflicts
// with resource.Default.
func (cfg *providerConfig) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
