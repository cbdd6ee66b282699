package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dsiportal/placement-sync/internal/portal"
)

// Permission is the tri-state notification permission of a UI.
type Permission string

const (
	// PermissionDefault means the user has not decided yet
	PermissionDefault Permission = "default"
	// PermissionGranted allows notifications
	PermissionGranted Permission = "granted"
	// PermissionDenied blocks notifications
	PermissionDenied Permission = "denied"
)

// ErrNotifierUnavailable is returned by a BrowserNotifier when no UI is there
// to show notifications. BrowserSink treats it as a skip.
var ErrNotifierUnavailable = errors.New("notification API unavailable")

// BrowserNotification is what a UI shows through its notification API.
type BrowserNotification struct {
	ID      portal.ID `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Tag     string    `json:"tag,omitempty"`
	Icon    string    `json:"icon,omitempty"`
	Created time.Time `json:"created"`
}

// BrowserNotifier is the UI's notification API.
type BrowserNotifier interface {
	Permission() Permission
	// RequestPermission asks the user and returns the decision.
	RequestPermission(ctx context.Context) (Permission, error)
	// Show displays n and calls onClick when the user clicks it. The returned
	// function closes the notification.
	Show(ctx context.Context, n BrowserNotification, onClick func()) (func(), error)
}

// BrowserSink shows realtime events as browser notifications. It skips
// delivery without error when the permission is not granted or no UI is
// connected.
type BrowserSink struct {
	Notifier  BrowserNotifier
	AutoClose time.Duration
	Icon      string
	// Lookup returns the live notification after the permission request,
	// which may have suspended long enough for a snapshot to remove it.
	Lookup func(id portal.ID) (portal.Notification, bool)
	// Focus brings the app to the foreground on click.
	Focus func()
}

// Name implements Sink.
func (BrowserSink) Name() string { return "browser" }

// Deliver implements Sink.
func (s BrowserSink) Deliver(ctx context.Context, ev Event) error {
	if s.Notifier == nil || !ev.Realtime {
		return nil
	}

	perm := s.Notifier.Permission()
	if perm == PermissionDefault {
		var err error
		perm, err = s.Notifier.RequestPermission(ctx)
		if errors.Is(err, ErrNotifierUnavailable) {
			slog.Debug("Browser notification skipped", "notification_id", ev.Notification.ID, "reason", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to request notification permission: %w", err)
		}
	}
	if perm != PermissionGranted {
		slog.Debug("Browser notification skipped", "notification_id", ev.Notification.ID, "permission", perm)
		return nil
	}

	n := ev.Notification
	if s.Lookup != nil {
		live, ok := s.Lookup(n.ID)
		if !ok {
			slog.Debug("Notification removed before display", "notification_id", n.ID)
			return nil
		}
		n = live
	}

	closeFn, err := s.Notifier.Show(ctx, BrowserNotification{
		ID:      n.ID,
		Title:   n.Title,
		Body:    n.Message,
		Tag:     n.ID.String(),
		Icon:    s.Icon,
		Created: time.Now(),
	}, s.onClick(n))
	if errors.Is(err, ErrNotifierUnavailable) {
		slog.Debug("Browser notification skipped", "notification_id", n.ID, "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to show browser notification: %w", err)
	}
	if s.AutoClose > 0 && closeFn != nil {
		time.AfterFunc(s.AutoClose, closeFn)
	}
	return nil
}

func (s BrowserSink) onClick(n portal.Notification) func() {
	return func() {
		if s.Focus != nil {
			s.Focus()
		}
		if n.Action == nil || n.Action.Callback == nil {
			return
		}
		if err := n.Action.Callback(context.Background()); err != nil {
			slog.Warn("Notification action failed", "notification_id", n.ID, "action", n.Action.Text, "error", err)
		}
	}
}
