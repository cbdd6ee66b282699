// Package v1 provides the HTTP handlers exposing the portal core to a UI.
package v1

import (
	"context"
	"net/http"

	"github.com/dsiportal/placement-sync/internal/connection"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	"github.com/dsiportal/placement-sync/internal/status"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks -source=services.go SyncService,ConnectionService,NotificationService,SessionService

// SyncService is the sync engine as seen by the API. Mutate applies a
// data-model change and persists the whole document.
type SyncService interface {
	State() *portal.State
	Status() *status.SyncStatus
	Retry(ctx context.Context) error
	Mutate(ctx context.Context, fn func(d *portal.Data) error) error
}

// ConnectionService reports the connection status.
type ConnectionService interface {
	Status() connection.Status
}

// NotificationService manages the notification feed.
type NotificationService interface {
	Add(ctx context.Context, draft notify.Draft) (portal.Notification, bool, error)
	MarkRead(ctx context.Context, rawID any) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, rawID any) error
	List() []portal.Notification
	Unread() int
}

// SessionService logs principals in and out.
type SessionService interface {
	Login(ctx context.Context, kind session.Kind, creds session.Credentials) (session.Principal, error)
	Logout(ctx context.Context) error
	Current() (session.Principal, bool)
}

// Services bundles the dependencies of the v1 routes. Push may be nil.
type Services struct {
	Sync          SyncService
	Connection    ConnectionService
	Notifications NotificationService
	Sessions      SessionService
	Push          http.Handler
}
