// Package push relays notifications to connected UIs over websockets, the
// way a page posts messages to its service worker.
package push

import (
	"maps"
	"time"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
)

// Message types exchanged with clients.
const (
	// TypePushNotification asks the worker to display a notification
	TypePushNotification = "PUSH_NOTIFICATION"
	// TypeSyncComplete announces that a snapshot has been applied
	TypeSyncComplete = "SYNC_COMPLETE"
	// TypeGetVersion asks the peer for its version
	TypeGetVersion = "GET_VERSION"
	// TypeVersion answers TypeGetVersion
	TypeVersion = "VERSION"
	// TypeSkipWaiting tells an outdated worker to activate the new version
	TypeSkipWaiting = "SKIP_WAITING"

	// TypeRequestPermission asks the page to prompt for notification permission
	TypeRequestPermission = "REQUEST_PERMISSION"
	// TypePermission reports the page's notification permission
	TypePermission = "PERMISSION"
	// TypeShowNotification asks the page to show a browser notification
	TypeShowNotification = "SHOW_NOTIFICATION"
	// TypeCloseNotification closes a browser notification
	TypeCloseNotification = "CLOSE_NOTIFICATION"
	// TypeNotificationClick reports a click on a browser notification
	TypeNotificationClick = "NOTIFICATION_CLICK"
	// TypeBadge carries the unread count and window title
	TypeBadge = "BADGE"
	// TypeToasts carries the visible toast stack
	TypeToasts = "TOASTS"
)

// DefaultTitle and DefaultBody fill payloads lacking them.
const (
	DefaultTitle = "DSI Placement Portal"
	DefaultBody  = "New job opportunity available!"
)

// DefaultVibrate is the vibration pattern of every push notification.
var DefaultVibrate = []int{200, 100, 200}

// Message is one frame on the push channel.
type Message struct {
	Type         string                      `json:"type"`
	Notification *Payload                    `json:"notification,omitempty"`
	Timestamp    int64                       `json:"timestamp,omitempty"`
	Version      string                      `json:"version,omitempty"`
	ID           string                      `json:"id,omitempty"`
	Permission   notify.Permission           `json:"permission,omitempty"`
	Browser      *notify.BrowserNotification `json:"browser,omitempty"`
	Badge        *BadgeState                 `json:"badge,omitempty"`
	Toasts       []notify.Toast              `json:"toasts,omitempty"`
}

// BadgeState is the unread counter as shown by the page.
type BadgeState struct {
	Count int    `json:"count"`
	Title string `json:"title"`
}

// PayloadAction is a button on a displayed notification.
type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is what the worker passes to its notification display API.
type Payload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	Icon               string          `json:"icon,omitempty"`
	Badge              string          `json:"badge,omitempty"`
	Tag                string          `json:"tag,omitempty"`
	RequireInteraction bool            `json:"requireInteraction"`
	Silent             bool            `json:"silent"`
	Vibrate            []int           `json:"vibrate,omitempty"`
	Data               map[string]any  `json:"data,omitempty"`
	Actions            []PayloadAction `json:"actions,omitempty"`
}

// DefaultPayload returns the payload shown when a push carries no data.
func DefaultPayload(cfg config.PushConfig, now time.Time) Payload {
	return Payload{
		Title:              DefaultTitle,
		Body:               DefaultBody,
		Icon:               cfg.Icon,
		Badge:              cfg.Badge,
		Tag:                cfg.Tag,
		RequireInteraction: true,
		Vibrate:            append([]int(nil), DefaultVibrate...),
		Data: map[string]any{
			"url":       cfg.URL,
			"timestamp": now.UnixMilli(),
			"type":      "job_update",
		},
		Actions: []PayloadAction{
			{Action: "view", Title: "View Jobs", Icon: cfg.Icon},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
}

// BuildPushPayload merges n into the default payload. Data keys from the
// notification override the defaults one by one.
func BuildPushPayload(n portal.Notification, cfg config.PushConfig, now time.Time) Payload {
	p := DefaultPayload(cfg, now)
	if n.Title != "" {
		p.Title = n.Title
	}
	if n.Message != "" {
		p.Body = n.Message
	}

	data := map[string]any{"id": n.ID.String()}
	if n.Type != "" {
		data["type"] = string(n.Type)
	}
	if n.Timestamp != 0 {
		data["timestamp"] = n.Timestamp
	}
	if n.Action != nil && n.Action.Link != "" {
		data["url"] = n.Action.Link
	}
	maps.Copy(p.Data, data)

	p.Actions[0].Title = "View Details"
	if n.Action != nil && n.Action.Text != "" {
		p.Actions[0].Title = n.Action.Text
	}
	return p
}
