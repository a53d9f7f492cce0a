package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Financial emails",
		Up: func(tx *sql.Tx) error {
			// Amounts are TEXT so decimal strings survive without REAL rounding.
			queries := []string{
				`CREATE TABLE IF NOT EXISTS financial_emails (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					email_id TEXT UNIQUE NOT NULL,
					subject TEXT NOT NULL,
					from_email TEXT NOT NULL,
					email_date DATETIME,
					body_preview TEXT,
					document_type TEXT,
					status TEXT,
					counterparty TEXT,
					original_amount TEXT,
					original_currency TEXT,
					usd_amount TEXT,
					exchange_rate TEXT,
					due_date DATETIME,
					issue_date DATETIME,
					start_date DATETIME,
					confidence REAL DEFAULT 0,
					analysis_method TEXT NOT NULL DEFAULT '',
					processed_at TEXT NOT NULL,
					raw_data TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_financial_emails_status ON financial_emails(status)`,
				`CREATE INDEX IF NOT EXISTS idx_financial_emails_document_type ON financial_emails(document_type)`,
				`CREATE INDEX IF NOT EXISTS idx_financial_emails_processed_at ON financial_emails(processed_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Session snapshots",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS session_snapshots (
					session_id TEXT PRIMARY KEY,
					state TEXT NOT NULL,
					data TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_session_snapshots_updated_at ON session_snapshots(updated_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
