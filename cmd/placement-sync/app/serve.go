package app

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsiportal/placement-sync/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync daemon and its API server",
		Long: `Start the sync engine against the configured backend and serve the portal
state, notifications, session and push channel over HTTP.

Without --config the daemon runs against an in-memory backend.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	cmd.Flags().Duration("graceful-timeout", defaultGracefulTimeout, "Time allowed for shutdown")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("graceful-timeout")
	if err != nil {
		return fmt.Errorf("failed to get graceful-timeout flag: %w", err)
	}

	portal, err := app.NewApp(ctx, app.WithConfig(cfg), app.WithAddress(address))
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- portal.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case runErr = <-errCh:
		if runErr != nil {
			slog.Error("App stopped", "error", runErr)
		}
	}

	if err := portal.Stop(timeout); err != nil {
		return err
	}
	return runErr
}
