package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dsiportal/placement-sync/internal/assets"
	"github.com/dsiportal/placement-sync/internal/connection"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/push"
	"github.com/dsiportal/placement-sync/internal/remote"
	"github.com/dsiportal/placement-sync/internal/session"
	psync "github.com/dsiportal/placement-sync/internal/sync"
	"github.com/dsiportal/placement-sync/internal/telemetry"
)

// Components groups the long-lived parts of the portal core
type Components struct {
	// Store is the remote document store
	Store remote.Store

	// Monitor tracks connectivity and backend readiness
	Monitor *connection.Monitor

	// Probe feeds online and offline events into Monitor
	Probe connection.Probe

	// Engine keeps the in-memory state in sync with the stored document
	Engine *psync.Engine

	// Dispatcher owns the notification feed
	Dispatcher *notify.Dispatcher

	// Toasts is the visible toast stack
	Toasts *notify.ToastStack

	// Hub relays messages to connected pages
	Hub *push.Hub

	// Sessions logs students and admins in and out
	Sessions *session.Manager

	// Assets is the offline asset cache (optional)
	Assets *assets.Worker

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}

// close releases every component in reverse build order. Components that
// were never built are skipped.
func (c *Components) close(ctx context.Context) error {
	var errs []error
	if c.Assets != nil {
		c.Assets.Wait()
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Wait()
	}
	if c.Hub != nil {
		if err := c.Hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close push hub: %w", err))
		}
	}
	if c.Toasts != nil {
		c.Toasts.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}
	if len(errs) > 0 {
		slog.Warn("Components closed with errors", "errors", len(errs))
	}
	return errors.Join(errs...)
}
