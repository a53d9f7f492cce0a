// Package testutil provides shared test fixtures for finmail packages.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/storage"
)

// TestDB represents a migrated in-memory database.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database seeded with records.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewRecord("msg-1").WithAmount("347.35", "USD").Build(),
//	)
func SetupTestDB(t *testing.T, records ...model.FinancialRecord) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Records: records})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Records        []model.FinancialRecord
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Records) > 0 {
		if saved := store.BatchUpsert(ctx, opts.Records); saved != len(opts.Records) {
			t.Fatalf("seeded %d of %d records", saved, len(opts.Records))
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// MustGet returns the stored record or fails the test.
func (db *TestDB) MustGet(sourceID string) *model.FinancialRecord {
	db.t.Helper()
	rec, err := db.Storage.Get(context.Background(), sourceID)
	if err != nil {
		db.t.Fatalf("failed to get record %q: %v", sourceID, err)
	}
	return rec
}
