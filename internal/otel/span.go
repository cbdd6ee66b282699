// Package otel holds the span helpers and attribute keys shared by the sync
// engine and the notification dispatcher.
package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on portal spans
const (
	AttrDocumentPath   = attribute.Key("portal.document.path")
	AttrDocumentBytes  = attribute.Key("portal.document.bytes")
	AttrSnapshotSource = attribute.Key("portal.snapshot.source")
	AttrNotificationID = attribute.Key("portal.notification.id")
	AttrSinkName       = attribute.Key("portal.notification.sink")
	AttrResultCount    = attribute.Key("portal.result.count")
	AttrErrorKind      = attribute.Key("portal.error.kind")
)

// KindedError is implemented by errors that carry a stable classification,
// recorded as AttrErrorKind.
type KindedError interface {
	error
	TelemetryKind() string
}

// StartSpan starts a span on tracer. A nil tracer returns the span already in
// ctx, which is a no-op when there is none.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. The status
// description stays generic; the error text is only in the span event.
// Nil spans and nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	var kinded KindedError
	if errors.As(err, &kinded) {
		span.SetAttributes(AttrErrorKind.String(kinded.TelemetryKind()))
	}
	span.SetStatus(codes.Error, "operation failed")
}

// Annotate sets attrs on the span carried by ctx, if any
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
