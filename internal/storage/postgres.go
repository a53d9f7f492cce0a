package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStorage implements service.RecordStore on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
	dsn  string
}

var _ service.RecordStore = (*PostgresStorage)(nil)

// DefaultConnectRetry retries the initial connection while the database starts up.
var DefaultConnectRetry = service.RetryOptions{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2,
}

// NewPostgresStorage opens a pool and pings it, retrying per opts.
func NewPostgresStorage(ctx context.Context, dsn string, maxConns int32, opts service.RetryOptions) (*PostgresStorage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	var pool *pgxpool.Pool
	err = common.WithRetry(ctx, func() error {
		p, connErr := pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr != nil {
			return common.Permanent(connErr)
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			return common.Transient(pingErr)
		}
		pool = p
		return nil
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	slog.Info("Connected to PostgreSQL",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns)

	return &PostgresStorage{pool: pool, dsn: dsn, now: time.Now}, nil
}

// Close releases the pool.
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// Ping checks that a connection can be acquired.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return p.pool.Ping(ctx)
}

// Migrate applies the embedded SQL migrations with golang-migrate.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(p.dsn))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("Migrations applied", "version", version, "dirty", dirty)
	return nil
}

// migrateURL rewrites a postgres:// url into the pgx5:// scheme the migrate driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

const postgresUpsert = `
	INSERT INTO financial_emails (
		email_id, subject, from_email, email_date, body_preview,
		document_type, status, counterparty,
		original_amount, original_currency, usd_amount, exchange_rate,
		due_date, issue_date, start_date,
		confidence, analysis_method, raw_data, processed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (email_id) DO UPDATE SET
		subject = EXCLUDED.subject,
		from_email = EXCLUDED.from_email,
		email_date = EXCLUDED.email_date,
		body_preview = EXCLUDED.body_preview,
		document_type = EXCLUDED.document_type,
		status = EXCLUDED.status,
		counterparty = EXCLUDED.counterparty,
		original_amount = EXCLUDED.original_amount,
		original_currency = EXCLUDED.original_currency,
		usd_amount = EXCLUDED.usd_amount,
		exchange_rate = EXCLUDED.exchange_rate,
		due_date = EXCLUDED.due_date,
		issue_date = EXCLUDED.issue_date,
		start_date = EXCLUDED.start_date,
		confidence = EXCLUDED.confidence,
		analysis_method = EXCLUDED.analysis_method,
		raw_data = EXCLUDED.raw_data,
		processed_at = EXCLUDED.processed_at`

// Upsert inserts or replaces the record keyed on its email id. Failures are logged and reported as false.
func (p *PostgresStorage) Upsert(ctx context.Context, rec model.FinancialRecord) bool {
	if err := p.upsert(ctx, rec); err != nil {
		common.LogError(err, "Failed to upsert financial record", common.Fields{"email_id": rec.SourceID})
		return false
	}
	common.LogDebug("Upserted financial record", common.Fields{"email_id": rec.SourceID})
	return true
}

func (p *PostgresStorage) upsert(ctx context.Context, rec model.FinancialRecord) error {
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

	amount, err := numeric(row.amount)
	if err != nil {
		return err
	}
	usd, err := numeric(row.usdAmount)
	if err != nil {
		return err
	}
	rate, err := numeric(row.exchangeRate)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, postgresUpsert,
		row.emailID, row.subject, row.from, row.emailDate, row.bodyPreview,
		row.documentType, row.status, row.counterparty,
		amount, row.currency, usd, rate,
		row.dueDate, row.issueDate, row.startDate,
		row.confidence, row.method, row.raw,
		p.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.SourceID, err)
	}
	return nil
}

func numeric(s *string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if s == nil {
		return n, nil
	}
	if err := n.Scan(*s); err != nil {
		return n, fmt.Errorf("failed to encode amount %q: %w", *s, err)
	}
	return n, nil
}

// BatchUpsert upserts each record in turn and returns how many succeeded.
func (p *PostgresStorage) BatchUpsert(ctx context.Context, records []model.FinancialRecord) int {
	saved := 0
	for _, rec := range records {
		if p.Upsert(ctx, rec) {
			saved++
		}
	}
	common.LogInfo("Batch upsert finished", common.Fields{"saved": saved, "total": len(records)})
	return saved
}

const postgresRecordColumns = `email_id, subject, from_email, COALESCE(body_preview, ''),
	document_type, status, counterparty,
	original_amount::text, original_currency, usd_amount::text, exchange_rate::text,
	confidence, analysis_method, raw_data`

func scanPostgresRecord(scanner pgx.Row) (model.FinancialRecord, error) {
	var row recordRow
	err := scanner.Scan(
		&row.emailID, &row.subject, &row.from, &row.bodyPreview,
		&row.documentType, &row.status, &row.counterparty,
		&row.amount, &row.currency, &row.usdAmount, &row.exchangeRate,
		&row.confidence, &row.method, &row.raw,
	)
	if err != nil {
		return model.FinancialRecord{}, err
	}
	return row.record()
}

// List returns records, most recently processed first.
func (p *PostgresStorage) List(ctx context.Context, filter service.RecordFilter) ([]model.FinancialRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.DocumentType != "" {
		args = append(args, string(filter.DocumentType))
		where = append(where, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + postgresRecordColumns + " FROM financial_emails"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY processed_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []model.FinancialRecord
	for rows.Next() {
		rec, scanErr := scanPostgresRecord(rows)
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
func (p *PostgresStorage) Get(ctx context.Context, sourceID string) (*model.FinancialRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceID, "sourceID"); err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx,
		"SELECT "+postgresRecordColumns+" FROM financial_emails WHERE email_id = $1", sourceID)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// Summary aggregates every stored record.
func (p *PostgresStorage) Summary(ctx context.Context) (*service.SummaryStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT document_type, status, original_currency, original_amount::text, usd_amount::text
		FROM financial_emails`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

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
