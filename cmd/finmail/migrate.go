package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finmail/internal/cli"
	"github.com/Veraticus/finmail/internal/config"
	"github.com/Veraticus/finmail/internal/storage"
)

type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the record store schema to the latest version.

Works against the configured driver, SQLite by default or PostgreSQL when
database.url or DATABASE_URL is set.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show the current schema version without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	slog.Info("Starting database migration", "driver", cfg.Driver, "status_only", status)

	if status {
		if cfg.Driver != config.DriverSQLite {
			return fmt.Errorf("schema status is only available for sqlite, postgres versions live in schema_migrations")
		}
		store, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		return printSchemaVersion(ctx, cmd, store, cfg.Path)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed")); err != nil {
		return err
	}
	if v, ok := store.(schemaVersioner); ok {
		return printSchemaVersion(ctx, cmd, v, cfg.Path)
	}
	return nil
}

func printSchemaVersion(ctx context.Context, cmd *cobra.Command, v schemaVersioner, path string) error {
	version, err := v.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Database Migration Status",
		cli.FormatField("Database", path)+"\n"+cli.FormatField("Version", fmt.Sprint(version))))
	return err
}
