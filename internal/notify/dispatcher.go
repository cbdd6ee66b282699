package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/feedback"
	"github.com/dsiportal/placement-sync/internal/otel"
	"github.com/dsiportal/placement-sync/internal/portal"
	psync "github.com/dsiportal/placement-sync/internal/sync"
	"github.com/dsiportal/placement-sync/internal/telemetry"
)

// TracerName is the name of the tracer used by the dispatcher
const TracerName = "github.com/dsiportal/placement-sync/notify"

var (
	// ErrNotFound is returned when no notification matches an id
	ErrNotFound = errors.New("notification not found")
	// ErrInvalidDraft is returned when a draft lacks a title or message
	ErrInvalidDraft = errors.New("invalid notification")
	// ErrCancelled is returned when the user declines a confirmation
	ErrCancelled = errors.New("cancelled by user")
)

// Engine is the part of the sync engine the dispatcher mutates through.
type Engine interface {
	State() *portal.State
	Apply(fn func(d *portal.Data) error) error
	Persist(ctx context.Context) error
}

// Draft is a notification to create.
type Draft struct {
	Type    portal.NotificationType `json:"type,omitempty"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Action  *portal.Action          `json:"action,omitempty"`
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AutoConfirm accepts every prompt. It is used when the caller has already
// confirmed, as the HTTP API does.
var AutoConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Dispatcher turns notification entities into user-visible effects exactly
// once per entity, whether they were created locally or arrived in a
// snapshot.
type Dispatcher struct {
	engine    Engine
	sinks     []Sink
	badge     *Badge
	actions   *ActionTable
	messenger feedback.Messenger
	confirmer Confirmer
	metrics   *telemetry.NotificationMetrics
	tracer    trace.Tracer
	now       func() time.Time

	limit                 int
	maxSimultaneousToasts int
	sinkTimeout           time.Duration

	mu     sync.Mutex
	seen   map[portal.ID]struct{}
	lastID int64

	pending sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithSinks sets the fan-out targets
func WithSinks(sinks ...Sink) Option {
	return func(d *Dispatcher) {
		d.sinks = append(d.sinks, sinks...)
	}
}

// WithBadge sets the unread badge
func WithBadge(b *Badge) Option {
	return func(d *Dispatcher) {
		d.badge = b
	}
}

// WithActionTable sets the table used to reattach action callbacks
func WithActionTable(t *ActionTable) Option {
	return func(d *Dispatcher) {
		d.actions = t
	}
}

// WithMessenger sets where user-visible failures are shown
func WithMessenger(m feedback.Messenger) Option {
	return func(d *Dispatcher) {
		d.messenger = m
	}
}

// WithConfirmer sets the confirmation prompt used by Delete
func WithConfirmer(c Confirmer) Option {
	return func(d *Dispatcher) {
		d.confirmer = c
	}
}

// WithMetrics sets the notification metrics
func WithMetrics(m *telemetry.NotificationMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer sets the tracer
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithClock overrides the time source used for ids and timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithMaxSimultaneousToasts sets how many notifications arriving in one
// snapshot are surfaced. The rest only show up in the list and badge.
func WithMaxSimultaneousToasts(n int) Option {
	return func(d *Dispatcher) {
		d.maxSimultaneousToasts = n
	}
}

// WithSinkTimeout bounds each sink delivery
func WithSinkTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.sinkTimeout = d
	}
}

// WithNotificationsConfig applies the list limit, burst policy and sink timeout
func WithNotificationsConfig(cfg *config.NotificationsConfig) Option {
	return func(d *Dispatcher) {
		d.limit = cfg.GetLimit()
		d.maxSimultaneousToasts = cfg.GetMaxSimultaneousToasts()
		d.sinkTimeout = cfg.GetSinkTimeout()
	}
}

// NewDispatcher creates a dispatcher over the engine's state.
func NewDispatcher(engine Engine, opts ...Option) *Dispatcher {
	var nilCfg *config.NotificationsConfig
	d := &Dispatcher{
		engine:                engine,
		messenger:             feedback.LogMessenger{},
		confirmer:             AutoConfirm,
		now:                   time.Now,
		limit:                 nilCfg.GetLimit(),
		maxSimultaneousToasts: nilCfg.GetMaxSimultaneousToasts(),
		sinkTimeout:           nilCfg.GetSinkTimeout(),
		seen:                  make(map[portal.ID]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	engine.State().View(func(data *portal.Data) {
		for _, n := range data.Notifications {
			d.seen[n.ID] = struct{}{}
		}
	})
	return d
}

// Badge returns the unread badge, or nil.
func (d *Dispatcher) Badge() *Badge {
	return d.badge
}

// Add creates a notification from draft, persists it and fans it out. A
// notification with the same title and message already present makes Add a
// no-op that reports false. Local display does not wait for persistence; a
// persist failure is returned after the fan-out has run and the notification
// stays in memory.
func (d *Dispatcher) Add(ctx context.Context, draft Draft) (portal.Notification, bool, error) {
	ctx, span := otel.StartSpan(ctx, d.tracer, "notify.Add")
	defer span.End()

	if draft.Title == "" || draft.Message == "" {
		err := fmt.Errorf("%w: title and message are required", ErrInvalidDraft)
		otel.RecordError(span, err)
		return portal.Notification{}, false, err
	}
	if draft.Type == "" {
		draft.Type = portal.NotificationInfo
	}
	if !draft.Type.Valid() {
		err := fmt.Errorf("%w: unknown type %q", ErrInvalidDraft, draft.Type)
		otel.RecordError(span, err)
		return portal.Notification{}, false, err
	}

	var created portal.Notification
	added := false
	_ = d.engine.Apply(func(data *portal.Data) error {
		for _, n := range data.Notifications {
			if n.Title == draft.Title && n.Message == draft.Message {
				return nil
			}
		}
		id, ts := d.nextID()
		created = portal.Notification{
			ID:        id,
			Type:      draft.Type,
			Title:     draft.Title,
			Message:   draft.Message,
			Timestamp: ts,
			Action:    draft.Action,
		}
		if created.Action != nil {
			a := *created.Action
			created.Action = &a
			d.actions.Attach([]portal.Notification{created})
		}
		data.Notifications = append([]portal.Notification{created}, data.Notifications...)
		if len(data.Notifications) > d.limit {
			data.Notifications = data.Notifications[:d.limit]
		}
		added = true
		return nil
	})
	if !added {
		slog.Debug("Duplicate notification ignored", "title", draft.Title)
		return portal.Notification{}, false, nil
	}
	span.SetAttributes(otel.AttrNotificationID.String(created.ID.String()))

	d.markSeen(created.ID)
	d.refreshBadge(ctx)
	done := fanOut(ctx, d.sinks, Event{Notification: created, Realtime: true}, d.sinkTimeout, d.metrics, d.tracer)

	err := d.engine.Persist(ctx)
	<-done
	if err != nil {
		otel.RecordError(span, err)
		return created, true, err
	}
	slog.Info("Notification added", "notification_id", created.ID, "type", created.Type)
	return created, true, nil
}

// MarkRead marks the notification read and persists. An unknown id is a
// no-op.
func (d *Dispatcher) MarkRead(ctx context.Context, rawID any) error {
	id, ok := portal.ParseID(rawID)
	if !ok {
		return nil
	}
	found := false
	_ = d.engine.Apply(func(data *portal.Data) error {
		if i := data.NotificationIndex(id); i >= 0 {
			data.Notifications[i].Read = true
			found = true
		}
		return nil
	})
	if !found {
		slog.Debug("Mark read ignored, notification not found", "notification_id", id)
		return nil
	}
	d.refreshBadge(ctx)
	return d.engine.Persist(ctx)
}

// MarkAllRead marks every notification read and persists.
func (d *Dispatcher) MarkAllRead(ctx context.Context) error {
	_ = d.engine.Apply(func(data *portal.Data) error {
		for i := range data.Notifications {
			data.Notifications[i].Read = true
		}
		return nil
	})
	d.refreshBadge(ctx)
	return d.engine.Persist(ctx)
}

// Delete removes the notification after the confirmer accepts. Ids are
// matched after normalization, so numeric and string forms are equivalent.
func (d *Dispatcher) Delete(ctx context.Context, rawID any) error {
	ok, err := d.confirmer.Confirm(ctx, "Are you sure you want to delete this notification?")
	if err != nil {
		return fmt.Errorf("failed to confirm deletion: %w", err)
	}
	if !ok {
		return ErrCancelled
	}

	// The confirmation may have suspended long enough for a snapshot to
	// replace the list, so the lookup happens only now.
	removed := false
	id, valid := portal.ParseID(rawID)
	if valid {
		_ = d.engine.Apply(func(data *portal.Data) error {
			i := data.NotificationIndex(id)
			if i < 0 {
				return nil
			}
			data.Notifications = append(data.Notifications[:i], data.Notifications[i+1:]...)
			removed = true
			return nil
		})
	}
	if !removed {
		err := fmt.Errorf("%w: %v", ErrNotFound, rawID)
		feedback.Error(ctx, d.messenger, "Failed to delete notification", err)
		return err
	}

	d.refreshBadge(ctx)
	if err := d.engine.Persist(ctx); err != nil {
		return err
	}
	slog.Info("Notification deleted", "notification_id", id)
	return nil
}

// Unread returns the number of unread notifications.
func (d *Dispatcher) Unread() int {
	count := 0
	d.engine.State().View(func(data *portal.Data) {
		count = data.UnreadCount()
	})
	return count
}

// List returns the notifications, newest first.
func (d *Dispatcher) List() []portal.Notification {
	var out []portal.Notification
	d.engine.State().View(func(data *portal.Data) {
		out = make([]portal.Notification, len(data.Notifications))
		copy(out, data.Notifications)
	})
	return out
}

// Lookup returns the live notification with the given id.
func (d *Dispatcher) Lookup(id portal.ID) (portal.Notification, bool) {
	var out portal.Notification
	found := false
	d.engine.State().View(func(data *portal.Data) {
		if i := data.NotificationIndex(id); i >= 0 {
			out = data.Notifications[i]
			found = true
		}
	})
	return out, found
}

// SeedWelcome adds the welcome notifications when the list is empty and
// persists them. It reports whether anything was seeded.
func (d *Dispatcher) SeedWelcome(ctx context.Context) (bool, error) {
	var seeded []portal.Notification
	_ = d.engine.Apply(func(data *portal.Data) error {
		if len(data.Notifications) > 0 {
			return nil
		}
		for _, draft := range welcomeDrafts {
			id, ts := d.nextID()
			seeded = append(seeded, portal.Notification{
				ID:        id,
				Type:      draft.Type,
				Title:     draft.Title,
				Message:   draft.Message,
				Timestamp: ts,
			})
		}
		// newest first
		for i, j := 0, len(seeded)-1; i < j; i, j = i+1, j-1 {
			seeded[i], seeded[j] = seeded[j], seeded[i]
		}
		data.Notifications = append(data.Notifications, seeded...)
		return nil
	})
	if len(seeded) == 0 {
		return false, nil
	}
	for _, n := range seeded {
		d.markSeen(n.ID)
	}
	d.refreshBadge(ctx)
	slog.Info("Seeded welcome notifications", "count", len(seeded))
	return true, d.engine.Persist(ctx)
}

var welcomeDrafts = []Draft{
	{
		Type:    portal.NotificationInfo,
		Title:   "Welcome to DSI Placement Portal",
		Message: "Browse open placement drives and track your shortlists here.",
	},
	{
		Type:    portal.NotificationSuccess,
		Title:   "Keep your profile up to date",
		Message: "Eligibility is checked against your 10th, 12th and CGPA marks.",
	},
}

// ObserveSnapshot is a sync.ReplaceObserver. For remote snapshots it finds
// the notifications not seen before and surfaces the newest of them, up to
// the burst limit. Every replacement refreshes the badge and reattaches
// action callbacks.
func (d *Dispatcher) ObserveSnapshot(ctx context.Context, r psync.Replacement) {
	if d.actions != nil {
		_ = d.engine.State().Update(func(data *portal.Data) error {
			d.actions.Attach(data.Notifications)
			return nil
		})
	}

	d.mu.Lock()
	for _, n := range r.Previous {
		d.seen[n.ID] = struct{}{}
	}
	var fresh []portal.ID
	for _, n := range r.Current {
		if _, ok := d.seen[n.ID]; ok {
			continue
		}
		d.seen[n.ID] = struct{}{}
		fresh = append(fresh, n.ID)
	}
	d.mu.Unlock()

	d.refreshBadge(ctx)

	if r.Source != psync.SourceSnapshot || len(fresh) == 0 {
		return
	}
	surface := fresh
	if d.maxSimultaneousToasts > 0 && len(surface) > d.maxSimultaneousToasts {
		surface = surface[:d.maxSimultaneousToasts]
	}
	slog.Info("New notifications received", "count", len(fresh), "surfaced", len(surface))

	for _, id := range surface {
		n, ok := d.Lookup(id)
		if !ok {
			continue
		}
		done := fanOut(ctx, d.sinks, Event{Notification: n, Realtime: true}, d.sinkTimeout, d.metrics, d.tracer)
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			<-done
		}()
	}
}

// Wait blocks until fan-outs started by snapshots have finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

func (d *Dispatcher) markSeen(id portal.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = struct{}{}
}

// nextID returns a millisecond timestamp id, bumped past the last one handed
// out so ids stay unique within a burst.
func (d *Dispatcher) nextID() (portal.ID, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ms := d.now().UnixMilli()
	if ms <= d.lastID {
		ms = d.lastID + 1
	}
	d.lastID = ms
	return portal.ID(strconv.FormatInt(ms, 10)), ms
}

func (d *Dispatcher) refreshBadge(ctx context.Context) {
	count := d.Unread()
	d.metrics.RecordUnread(ctx, count)
	if d.badge != nil {
		d.badge.Set(count)
	}
}
