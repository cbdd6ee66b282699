package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/dsiportal/placement-sync/sync"

	// NotificationMetricsMeterName is the name used for the notification metrics meter
	NotificationMetricsMeterName = "github.com/dsiportal/placement-sync/notify"
)

// Operation labels for sync metrics
const (
	OperationLoad    = "load"
	OperationPersist = "persist"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	operationDuration metric.Float64Histogram
	snapshotsTotal    metric.Int64Counter
	resubscribesTotal metric.Int64Counter
	documentBytes     metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	operationDuration, err := meter.Float64Histogram(
		"placement_sync_operation_duration_seconds",
		metric.WithDescription("Duration of document load and persist operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	snapshotsTotal, err := meter.Int64Counter(
		"placement_sync_snapshots_total",
		metric.WithDescription("Number of document replacements applied, by source"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	resubscribesTotal, err := meter.Int64Counter(
		"placement_sync_resubscribes_total",
		metric.WithDescription("Number of subscription re-arm attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	documentBytes, err := meter.Int64Gauge(
		"placement_sync_document_bytes",
		metric.WithDescription("Size of the last document read or written"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		operationDuration: operationDuration,
		snapshotsTotal:    snapshotsTotal,
		resubscribesTotal: resubscribesTotal,
		documentBytes:     documentBytes,
	}, nil
}

// RecordOperation records the duration of a load or persist operation
func (m *SyncMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
	if m == nil || m.operationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	}

	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSnapshot counts an applied replacement
func (m *SyncMetrics) RecordSnapshot(ctx context.Context, source string) {
	if m == nil || m.snapshotsTotal == nil {
		return
	}
	m.snapshotsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordResubscribe counts a subscription re-arm attempt
func (m *SyncMetrics) RecordResubscribe(ctx context.Context, success bool) {
	if m == nil || m.resubscribesTotal == nil {
		return
	}
	m.resubscribesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordDocumentBytes records the size of the document
func (m *SyncMetrics) RecordDocumentBytes(ctx context.Context, size int) {
	if m == nil || m.documentBytes == nil {
		return
	}
	m.documentBytes.Record(ctx, int64(size))
}

// NotificationMetrics holds the OpenTelemetry instruments for notification delivery
type NotificationMetrics struct {
	deliveriesTotal metric.Int64Counter
	unread          metric.Int64Gauge
}

// NewNotificationMetrics creates a new NotificationMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewNotificationMetrics(provider metric.MeterProvider) (*NotificationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(NotificationMetricsMeterName)

	deliveriesTotal, err := meter.Int64Counter(
		"placement_sync_notification_deliveries_total",
		metric.WithDescription("Number of fan-out deliveries per sink"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	unread, err := meter.Int64Gauge(
		"placement_sync_notifications_unread",
		metric.WithDescription("Number of unread notifications"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &NotificationMetrics{
		deliveriesTotal: deliveriesTotal,
		unread:          unread,
	}, nil
}

// RecordDelivery counts one sink delivery
func (m *NotificationMetrics) RecordDelivery(ctx context.Context, sink string, success bool) {
	if m == nil || m.deliveriesTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sink", sink),
		attribute.Bool("success", success),
	}

	m.deliveriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUnread records the current badge count
func (m *NotificationMetrics) RecordUnread(ctx context.Context, count int) {
	if m == nil || m.unread == nil {
		return
	}
	m.unread.Record(ctx, int64(count))
}
