package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/dsiportal/placement-sync/database"
	"github.com/dsiportal/placement-sync/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Manage the schema of the postgres document store. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert database migrations. Without --num-steps every migration is reverted
and the stored portal document is lost.`,
		Example: "  placement-sync migrate down --config config.yaml --num-steps 1 --yes",
		RunE:    runMigrateDown,
	})
	return cmd
}

// setupMigration loads the configuration and opens a migrator on the
// postgres backend it names.
func setupMigration(cmd *cobra.Command) (database.Migrator, uint, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, 0, err
	}
	if cfg.Backend.GetType() != config.BackendPostgres || cfg.Backend.Postgres == nil {
		return nil, 0, errors.New("migrations require a postgres backend configuration")
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt {
		return nil, 0, errors.New("number of steps exceeds maximum allowed value")
	}

	connString, err := cfg.Backend.Postgres.GetConnectionString()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build connection string: %w", err)
	}
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, numSteps, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, numSteps, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if ok, err := confirmed(cmd, "About to apply migrations to the postgres backend. Continue?"); err != nil || !ok {
		return err
	}

	slog.Info("Applying database migrations", "steps", numSteps)
	if numSteps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(int(numSteps)) // #nosec G115 -- bounded in setupMigration
	}
	if err := migrationResult(err); err != nil {
		return err
	}
	displayMigrationVersion(m)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, numSteps, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	prompt := "WARNING: This will migrate down ALL steps and delete the stored portal document. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	if ok, err := confirmed(cmd, prompt); err != nil || !ok {
		return err
	}

	if numSteps == 0 {
		slog.Warn("Migrating down all steps")
		err = m.Down()
	} else {
		slog.Info("Migrating down", "steps", numSteps)
		err = m.Steps(-int(numSteps)) // #nosec G115 -- bounded in setupMigration
	}
	if err := migrationResult(err); err != nil {
		return err
	}
	displayMigrationVersion(m)
	return nil
}

// confirmed asks prompt on the command's input unless --yes was given.
func confirmed(cmd *cobra.Command, prompt string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}
	ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
	}
	return ok, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s (yes/no): ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return true, nil
	default:
		return false, nil
	}
}

func migrationResult(err error) error {
	switch {
	case err == nil:
		slog.Info("Migration completed successfully")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("No migrations to apply")
		return nil
	default:
		return fmt.Errorf("migration failed: %w", err)
	}
}

func displayMigrationVersion(m database.Migrator) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("Database schema has been completely removed")
	case err != nil:
		slog.Warn("Failed to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}

func closeMigrator(m database.Migrator) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		slog.Warn("Error closing migrator", "error", err)
	}
}
