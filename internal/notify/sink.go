package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dsiportal/placement-sync/internal/otel"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=sink.go Sink,Relay

// Event is one notification to surface through every sink.
type Event struct {
	Notification portal.Notification
	// Realtime marks events surfaced for a new notification entity, as opposed
	// to generic feedback.
	Realtime bool
}

// Sink is one independently best-effort fan-out target.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Deliver surfaces the event. It must return once ctx is done.
	Deliver(ctx context.Context, ev Event) error
}

// Relay forwards a notification to the push channel. Implementations must
// not wait for an acknowledgment.
type Relay interface {
	RelayNotification(ctx context.Context, n portal.Notification) error
}

// PushSink hands notifications to a Relay.
type PushSink struct {
	Relay Relay
}

// Name implements Sink.
func (PushSink) Name() string { return "push" }

// Deliver implements Sink.
func (s PushSink) Deliver(ctx context.Context, ev Event) error {
	if s.Relay == nil {
		return nil
	}
	return s.Relay.RelayNotification(ctx, ev.Notification)
}

// fanOut delivers ev to every sink concurrently. Each sink gets its own
// timeout and a panic in one sink is contained to it. The returned channel
// closes once every sink has returned.
func fanOut(
	ctx context.Context,
	sinks []Sink,
	ev Event,
	timeout time.Duration,
	metrics *telemetry.NotificationMetrics,
	tracer trace.Tracer,
) <-chan struct{} {
	done := make(chan struct{})
	if len(sinks) == 0 {
		close(done)
		return done
	}

	// Delivery outlives the caller, e.g. an HTTP request that already returned.
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := deliver(base, sink, ev, timeout, tracer)
			metrics.RecordDelivery(base, sink.Name(), err == nil)
			if err != nil {
				slog.Warn("Notification sink failed",
					"sink", sink.Name(),
					"notification_id", ev.Notification.ID,
					"error", err)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func deliver(
	ctx context.Context,
	sink Sink,
	ev Event,
	timeout time.Duration,
	tracer trace.Tracer,
) (err error) {
	ctx, span := otel.StartSpan(ctx, tracer, "notify.Deliver",
		trace.WithAttributes(
			otel.AttrSinkName.String(sink.Name()),
			otel.AttrNotificationID.String(ev.Notification.ID.String()),
		))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
		otel.RecordError(span, err)
	}()
	return sink.Deliver(ctx, ev)
}
