package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// processedAtLayout is fixed width so processed_at sorts lexically in SQLite.
const processedAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage implements service.RecordStore using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
}

var _ service.RecordStore = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and :memory: needs exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// DB exposes the underlying handle for components sharing the database file.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

const sqliteUpsert = `
	INSERT INTO financial_emails (
		email_id, subject, from_email, email_date, body_preview,
		document_type, status, counterparty,
		original_amount, original_currency, usd_amount, exchange_rate,
		due_date, issue_date, start_date,
		confidence, analysis_method, raw_data, processed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(email_id) DO UPDATE SET
		subject = excluded.subject,
		from_email = excluded.from_email,
		email_date = excluded.email_date,
		body_preview = excluded.body_preview,
		document_type = excluded.document_type,
		status = excluded.status,
		counterparty = excluded.counterparty,
		original_amount = excluded.original_amount,
		original_currency = excluded.original_currency,
		usd_amount = excluded.usd_amount,
		exchange_rate = excluded.exchange_rate,
		due_date = excluded.due_date,
		issue_date = excluded.issue_date,
		start_date = excluded.start_date,
		confidence = excluded.confidence,
		analysis_method = excluded.analysis_method,
		raw_data = excluded.raw_data,
		processed_at = excluded.processed_at`

// Upsert inserts or replaces the record keyed on its email id. Failures are logged and reported as false.
func (s *SQLiteStorage) Upsert(ctx context.Context, rec model.FinancialRecord) bool {
	if err := s.upsert(ctx, rec); err != nil {
		common.LogError(err, "Failed to upsert financial record", common.Fields{"email_id": rec.SourceID})
		return false
	}
	common.LogDebug("Upserted financial record", common.Fields{"email_id": rec.SourceID})
	return true
}

func (s *SQLiteStorage) upsert(ctx context.Context, rec model.FinancialRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(&rec); err != nil {
		return err
	}

	row, err := newRecordRow(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, sqliteUpsert,
		row.emailID, row.subject, row.from, row.emailDate, row.bodyPreview,
		row.documentType, row.status, row.counterparty,
		row.amount, row.currency, row.usdAmount, row.exchangeRate,
		row.dueDate, row.issueDate, row.startDate,
		row.confidence, row.method, string(row.raw),
		s.now().UTC().Format(processedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.SourceID, err)
	}
	return nil
}

// BatchUpsert upserts each record in turn and returns how many succeeded.
func (s *SQLiteStorage) BatchUpsert(ctx context.Context, records []model.FinancialRecord) int {
	saved := 0
	for _, rec := range records {
		if s.Upsert(ctx, rec) {
			saved++
		}
	}
	common.LogInfo("Batch upsert finished", common.Fields{"saved": saved, "total": len(records)})
	return saved
}

const sqliteRecordColumns = `email_id, subject, from_email, body_preview,
	document_type, status, counterparty,
	original_amount, original_currency, usd_amount, exchange_rate,
	confidence, analysis_method, raw_data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(scanner rowScanner) (model.FinancialRecord, error) {
	var (
		row recordRow
		raw sql.NullString
	)
	err := scanner.Scan(
		&row.emailID, &row.subject, &row.from, &row.bodyPreview,
		&row.documentType, &row.status, &row.counterparty,
		&row.amount, &row.currency, &row.usdAmount, &row.exchangeRate,
		&row.confidence, &row.method, &raw,
	)
	if err != nil {
		return model.FinancialRecord{}, err
	}
	if raw.Valid {
		row.raw = []byte(raw.String)
	}
	return row.record()
}

// List returns records, most recently processed first.
func (s *SQLiteStorage) List(ctx context.Context, filter service.RecordFilter) ([]model.FinancialRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.DocumentType != "" {
		where = append(where, "document_type = ?")
		args = append(args, string(filter.DocumentType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + sqliteRecordColumns + " FROM financial_emails"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY processed_at DESC, id DESC LIMIT ?"
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.FinancialRecord
	for rows.Next() {
		rec, scanErr := scanSQLiteRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan record: %w", scanErr)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Get returns a single record by email id.
func (s *SQLiteStorage) Get(ctx context.Context, sourceID string) (*model.FinancialRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceID, "sourceID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteRecordColumns+" FROM financial_emails WHERE email_id = ?", sourceID)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// Summary aggregates every stored record.
func (s *SQLiteStorage) Summary(ctx context.Context) (*service.SummaryStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_type, status, original_currency, original_amount, usd_amount
		FROM financial_emails`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	b := newStatsBuilder()
	for rows.Next() {
		var docType, status, currency, amount, usd *string
		if err := rows.Scan(&docType, &status, &currency, &amount, &usd); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if err := b.add(docType, status, currency, amount, usd); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return b.result(), nil
}
