package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/config"
	"github.com/Veraticus/finmail/internal/currency"
	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/llm"
	"github.com/Veraticus/finmail/internal/mailbox"
	"github.com/Veraticus/finmail/internal/orchestrator"
	"github.com/Veraticus/finmail/internal/service"
	"github.com/Veraticus/finmail/internal/session"
	"github.com/Veraticus/finmail/internal/storage"
)

// components selects which optional collaborators a command needs. A required
// component that fails to initialize aborts the command; others are skipped with a warning.
type components struct {
	mailbox  bool
	database bool
	llm      bool
	sessions bool
	required []string
}

func (c components) requires(name string) bool {
	for _, r := range c.required {
		if r == name {
			return true
		}
	}
	return false
}

// app holds the wired collaborators for one command run.
type app struct {
	orch      *orchestrator.Orchestrator
	store     service.RecordStore
	converter *currency.Converter
	sessions  *session.Manager
	llmClient llm.Client
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to release resource", "error", err)
		}
	}
}

func buildApp(ctx context.Context, want components) (*app, error) {
	a := &app{}
	logger := slog.Default()

	exchangeCfg, err := config.LoadExchangeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange config: %w", err)
	}
	a.converter = currency.NewDefaultConverter(*exchangeCfg, logger)

	extractor := extract.New(a.converter, extract.WithLogger(logger))
	deps := orchestrator.Deps{Extractor: extractor}

	if want.database {
		store, err := initStorage(ctx)
		if err != nil {
			if want.requires("database") {
				a.Close()
				return nil, err
			}
			slog.Warn("Database unavailable, continuing without it", "error", err)
		} else {
			a.store = store
			a.closers = append(a.closers, store.Close)
			deps.Store = store
		}
	}

	if want.mailbox {
		opener, err := initMailbox()
		if err != nil {
			if want.requires("mailbox") {
				a.Close()
				return nil, err
			}
			slog.Warn("Mailbox unavailable, continuing without it", "error", err)
		} else {
			deps.Mailbox = opener
		}
	}

	if want.llm {
		client, err := initLLM()
		if err != nil {
			if want.requires("llm") {
				a.Close()
				return nil, err
			}
			slog.Info("LLM analysis disabled", "reason", err)
		} else {
			a.llmClient = client
			a.closers = append(a.closers, func() error { return llm.Close(client) })
			deps.Analyzer = llm.NewAnalyzer(client,
				llm.WithRules(extractor),
				llm.WithRater(a.converter),
				llm.WithLogger(logger),
			)
		}
	}

	if want.sessions {
		manager, err := initSessions(ctx, a.store)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sessions = manager
		a.closers = append(a.closers, func() error { manager.Stop(); return nil })
		deps.Sessions = manager
	}

	orch, err := orchestrator.New(deps, deps.Capabilities(),
		orchestrator.WithOutputDir(config.LoadOutputDir()),
		orchestrator.WithVersion(version),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	a.orch = orch

	common.LogDebug("Components initialized", common.Fields{
		"mailbox":  deps.Mailbox != nil,
		"database": deps.Store != nil,
		"llm":      deps.Analyzer != nil,
		"sessions": deps.Sessions != nil,
	})
	return a, nil
}

// initStorage opens the configured record store and applies migrations.
func initStorage(ctx context.Context) (service.RecordStore, error) {
	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	var store service.RecordStore
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(ctx, cfg.URL, cfg.MaxConns, storage.DefaultConnectRetry)
	default:
		store, err = storage.NewSQLiteStorage(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func initMailbox() (service.MailboxOpener, error) {
	backend, err := config.MailBackend()
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.MailBackendIMAP:
		cfg, err := config.LoadIMAPConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load imap config: %w", err)
		}
		return mailbox.NewIMAP(*cfg), nil
	default:
		cfg, err := config.LoadGmailConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load gmail config: %w", err)
		}
		return mailbox.GmailOpener{Config: *cfg}, nil
	}
}

func initLLM() (llm.Client, error) {
	cfg, err := config.LoadLLMConfig()
	if err != nil {
		return nil, err
	}
	return llm.NewClient(*cfg)
}

// initSessions builds the session manager on the configured snapshot store and
// restores surviving sessions.
func initSessions(ctx context.Context, store service.RecordStore) (*session.Manager, error) {
	cfg, err := config.LoadSessionConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load session config: %w", err)
	}

	opts := []session.Option{
		session.WithMaxAge(cfg.MaxAge),
		session.WithCleanupInterval(cfg.CleanupInterval),
	}

	switch cfg.Backend {
	case config.SnapshotSQLite:
		sqliteStore, ok := store.(*storage.SQLiteStorage)
		if !ok {
			return nil, fmt.Errorf("%w: sqlite session snapshots need the sqlite database driver", common.ErrInvalidConfig)
		}
		opts = append(opts, session.WithSnapshots(session.NewSQLiteSnapshotStore(sqliteStore.DB())))
	case config.SnapshotFile:
		fileStore, err := session.NewFileSnapshotStore(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open session snapshots: %w", err)
		}
		opts = append(opts, session.WithSnapshots(fileStore))
	}

	manager := session.NewManager(opts...)
	if cfg.Backend != config.SnapshotNone {
		restored, err := manager.Restore(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Failed to restore sessions", "error", err)
		} else if restored > 0 {
			slog.Info("Restored review sessions", "count", restored)
		}
	}
	manager.Start()
	return manager, nil
}
