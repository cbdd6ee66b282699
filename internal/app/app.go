// Package app provides application lifecycle management for the portal core.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dsiportal/placement-sync/internal/config"
	psync "github.com/dsiportal/placement-sync/internal/sync"
)

// App encapsulates all components needed to run the portal core.
// It provides lifecycle management and graceful shutdown capabilities
type App struct {
	config     *config.Config
	components *Components
	httpServer *http.Server

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	stopped    bool
}

// Start runs the sync engine, the connectivity probe and the HTTP server.
// It blocks until Stop is called, ctx is cancelled or the HTTP server fails.
func (app *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	app.mu.Lock()
	if app.stopped {
		app.mu.Unlock()
		cancel()
		return errors.New("app already stopped")
	}
	app.cancelFunc = cancel
	app.mu.Unlock()
	defer cancel()

	c := app.components
	if c.Assets != nil {
		if err := c.Assets.Install(runCtx); err != nil {
			slog.Warn("Asset precache incomplete", "version", c.Assets.Version(), "error", err)
		}
		if deleted := c.Assets.Activate(runCtx); len(deleted) > 0 {
			slog.Info("Deleted outdated asset caches", "caches", deleted)
		}
	}

	// The saved session is restored against the first loaded document; a
	// reset state would discard it as stale.
	var restoreOnce sync.Once
	c.Engine.OnReplace(func(ctx context.Context, r psync.Replacement) {
		if r.Source == psync.SourceReset {
			return
		}
		restoreOnce.Do(func() {
			if _, _, err := c.Sessions.Restore(ctx); err != nil {
				slog.Warn("Failed to restore session", "error", err)
			}
		})
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		c.Monitor.WatchStore(gctx, c.Store)
		return nil
	})
	g.Go(func() error {
		return c.Monitor.Run(gctx, c.Probe)
	})
	g.Go(func() error {
		return c.Engine.Start(gctx)
	})
	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), defaultIdleTimeout)
		defer cancel()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// It stops the sync engine, shuts down the HTTP server and releases the
// remaining components.
func (app *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	app.mu.Lock()
	app.stopped = true
	cancel := app.cancelFunc
	app.mu.Unlock()

	if err := app.components.Engine.Stop(); err != nil {
		slog.Error("Failed to stop sync engine", "error", err)
	}
	if cancel != nil {
		cancel()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *App) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the built components
func (app *App) Components() *Components {
	return app.components
}
