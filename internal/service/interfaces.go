// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

// RecordFilter narrows record listings. Zero values mean no filter.
type RecordFilter struct {
	DocumentType model.DocumentType
	Status       model.Status
	Limit        int
}

// RecordStore is the persistence gateway for financial records.
type RecordStore interface {
	// Upsert inserts or replaces a record keyed on its source id. It reports false on any failure.
	Upsert(ctx context.Context, record model.FinancialRecord) bool
	// BatchUpsert upserts every record, continuing past failures, and returns the success count.
	BatchUpsert(ctx context.Context, records []model.FinancialRecord) int
	// List returns records ordered by most recently processed first.
	List(ctx context.Context, filter RecordFilter) ([]model.FinancialRecord, error)
	// Get returns a single record by source id.
	Get(ctx context.Context, sourceID string) (*model.FinancialRecord, error)
	// Summary aggregates the stored records.
	Summary(ctx context.Context) (*SummaryStats, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Mailbox searches a mail account for messages.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.Email, error)
}

// MailboxOpener resolves the mailbox for an account. An empty account selects the default one.
type MailboxOpener interface {
	Open(ctx context.Context, account string) (Mailbox, error)
}

// SummaryStats contains aggregate information about stored records.
type SummaryStats struct {
	ByType          map[model.DocumentType]int `json:"by_type"`
	ByStatus        map[model.Status]int       `json:"by_status"`
	TotalByCurrency map[string]decimal.Decimal `json:"total_by_currency"`
	TotalUSD        decimal.Decimal            `json:"total_usd"`
	TotalRecords    int                        `json:"total_records"`
	CurrencyCount   int                        `json:"currency_count"`
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
