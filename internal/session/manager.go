package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxAge          = 24 * time.Hour
	defaultCleanupInterval = time.Hour
)

type entry struct {
	session *Session
	mu      sync.Mutex
	evicted bool
}

// Manager owns all live sessions. Each session is guarded by its own mutex so calls for
// different sessions never contend.
type Manager struct {
	now             func() time.Time
	entries         map[string]*entry
	snapshots       SnapshotStore
	logger          *slog.Logger
	stopCh          chan struct{}
	doneCh          chan struct{}
	maxAge          time.Duration
	cleanupInterval time.Duration
	mu              sync.RWMutex
	startOnce       sync.Once
	stopOnce        sync.Once
	running         atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithSnapshots persists every session change to store.
func WithSnapshots(store SnapshotStore) Option {
	return func(m *Manager) { m.snapshots = store }
}

// WithMaxAge sets the inactivity timeout after which a session is evicted.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithCleanupInterval sets how often the expiry loop runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. Call Start to run the expiry loop.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		now:             time.Now,
		entries:         make(map[string]*entry),
		logger:          slog.Default(),
		maxAge:          defaultMaxAge,
		cleanupInterval: defaultCleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the periodic expiry loop until Stop is called.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.running.Store(true)
		go m.cleanupLoop()
	})
}

// Stop ends the expiry loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.running.Load() {
		<-m.doneCh
	}
}

func (m *Manager) cleanupLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanupExpired(context.Background()); n > 0 {
				m.logger.Info("Evicted expired sessions", "count", n)
			}
		case <-m.stopCh:
			return
		}
	}
}

// with runs fn on the session under its lock, creating it on first reference. LastActivity is
// refreshed on every call; a snapshot is written under the same lock when a mutation succeeds.
func (m *Manager) with(ctx context.Context, id string, mutate bool, fn func(*Session) error) error {
	if id == "" {
		return ErrEmptySessionID
	}

	for {
		e := m.entry(id)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}

		err := fn(e.session)
		e.session.LastActivity = m.now()
		if err == nil && mutate && m.snapshots != nil {
			if saveErr := m.snapshots.Save(ctx, e.session.Clone()); saveErr != nil {
				m.logger.Warn("Failed to write session snapshot", "session_id", id, "error", saveErr)
			}
		}
		e.mu.Unlock()

		return err
	}
}

func (m *Manager) entry(id string) *entry {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[id]; ok {
		return e
	}
	e = &entry{session: newSession(id, m.now())}
	m.entries[id] = e
	return e
}

// Get returns a copy of the session, creating it on first reference.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	var out *Session
	err := m.with(ctx, id, false, func(s *Session) error {
		out = s.Clone()
		return nil
	})
	return out, err
}

// Summary returns the status view of a session.
func (m *Manager) Summary(ctx context.Context, id string) (Summary, error) {
	var out Summary
	err := m.with(ctx, id, false, func(s *Session) error {
		out = summarize(s)
		return nil
	})
	return out, err
}

// BeginProcessing starts a new cycle from any state.
func (m *Manager) BeginProcessing(ctx context.Context, id, account string) error {
	return m.with(ctx, id, true, func(s *Session) error {
		s.State = StateProcessing
		s.LastError = ""
		if account != "" {
			s.EmailAccount = account
		}
		return nil
	})
}

// StoreCandidates replaces the candidate list and moves to review, returning the preview.
// An empty list completes the cycle instead.
func (m *Manager) StoreCandidates(ctx context.Context, id string, records []model.FinancialRecord) ([]ReviewItem, error) {
	var preview []ReviewItem
	err := m.with(ctx, id, true, func(s *Session) error {
		if s.State != StateProcessing {
			return fmt.Errorf("%w: store candidates in %s", ErrInvalidTransition, s.State)
		}
		s.Candidates = make([]model.FinancialRecord, len(records))
		for i, rec := range records {
			s.Candidates[i] = rec.Clone()
		}
		if len(records) == 0 {
			s.State = StateCompleted
			preview = []ReviewItem{}
			return nil
		}
		s.State = StateReview
		preview = Preview(s.Candidates)
		return nil
	})
	return preview, err
}

// Complete finishes a processing cycle that produced nothing to review.
func (m *Manager) Complete(ctx context.Context, id string) error {
	return m.with(ctx, id, true, func(s *Session) error {
		if s.State != StateProcessing {
			return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, s.State)
		}
		s.Candidates = nil
		s.State = StateCompleted
		return nil
	})
}

// Fail moves the session to error from any state.
func (m *Manager) Fail(ctx context.Context, id, reason string) error {
	return m.with(ctx, id, true, func(s *Session) error {
		s.State = StateError
		s.LastError = reason
		return nil
	})
}

// Confirm records a confirmation decision and optional field modifications for one record.
// Unknown or invalid fields reject the whole call and nothing is recorded.
func (m *Manager) Confirm(ctx context.Context, id, sourceID string, confirmed bool, mods map[string]any) (ConfirmResult, error) {
	var result ConfirmResult
	err := m.with(ctx, id, true, func(s *Session) error {
		if s.State != StateReview {
			return fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, s.State)
		}
		rec, ok := s.candidate(sourceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, sourceID)
		}

		current, err := ApplyModifications(*rec, s.Modifications[sourceID])
		if err != nil {
			return err
		}
		updated, err := ApplyModifications(current, mods)
		if err != nil {
			return err
		}

		s.Confirmations[sourceID] = confirmed

		fields := make([]string, 0, len(mods))
		for f := range mods {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		applied := 0
		now := m.now()
		for _, field := range fields {
			oldValue, _ := current.Info.Get(field)
			newValue, _ := updated.Info.Get(field)
			oldText, newText := model.FormatValue(oldValue), model.FormatValue(newValue)
			if oldText == newText {
				continue
			}
			if s.Modifications[sourceID] == nil {
				s.Modifications[sourceID] = make(map[string]any)
			}
			s.Modifications[sourceID][field] = mods[field]
			s.History = append(s.History, Modification{
				Timestamp: now,
				SourceID:  sourceID,
				Field:     field,
				OldValue:  plainValue(oldValue),
				NewValue:  plainValue(newValue),
				Reason:    fmt.Sprintf("user modified: %s -> %s", oldText, newText),
			})
			applied++
		}

		result = ConfirmResult{
			SourceID:             sourceID,
			Confirmed:            confirmed,
			ModificationsApplied: applied,
			State:                s.State,
		}
		return nil
	})
	return result, err
}

// ConfirmedRecords returns the confirmed records with their modifications overlaid, in
// candidate order. The session is not changed.
func (m *Manager) ConfirmedRecords(ctx context.Context, id string) ([]model.FinancialRecord, error) {
	var out []model.FinancialRecord
	err := m.with(ctx, id, false, func(s *Session) (err error) {
		out, err = confirmedRecords(s)
		return err
	})
	return out, err
}

func confirmedRecords(s *Session) ([]model.FinancialRecord, error) {
	if s.State != StateReview {
		return nil, fmt.Errorf("%w: save in %s", ErrInvalidTransition, s.State)
	}
	out := make([]model.FinancialRecord, 0, len(s.Candidates))
	for _, rec := range s.Candidates {
		if !s.Confirmations[rec.SourceID] {
			continue
		}
		overlaid, err := ApplyModifications(rec, s.Modifications[rec.SourceID])
		if err != nil {
			return nil, err
		}
		out = append(out, overlaid)
	}
	return out, nil
}

// PersistFunc writes records and returns how many were stored.
type PersistFunc func(ctx context.Context, records []model.FinancialRecord) int

// SaveOutcome reports one save of a review session.
type SaveOutcome struct {
	Summary   Summary
	Saved     int
	Confirmed int
}

// Save hands the confirmed records to persist and completes the cycle in one step under the
// session lock. Confirmations and new processing passes for the session wait until it returns.
// With nothing confirmed, persist is not called and the session stays in review.
func (m *Manager) Save(ctx context.Context, id string, persist PersistFunc) (SaveOutcome, error) {
	var out SaveOutcome
	err := m.with(ctx, id, true, func(s *Session) error {
		records, err := confirmedRecords(s)
		if err != nil {
			return err
		}
		out.Confirmed = len(records)
		if len(records) > 0 {
			out.Saved = persist(ctx, records)
			s.State = StateCompleted
		}
		out.Summary = summarize(s)
		return nil
	})
	return out, err
}

// Clear removes a session from memory and from the snapshot store.
func (m *Manager) Clear(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		if m.snapshots != nil {
			return m.snapshots.Delete(ctx, id)
		}
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m.evict(ctx, id, e)
}

// CleanupExpired evicts sessions idle for longer than the max age and returns how many were removed.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	cutoff := m.now().Add(-m.maxAge)

	m.mu.RLock()
	candidates := make(map[string]*entry)
	for id, e := range m.entries {
		candidates[id] = e
	}
	m.mu.RUnlock()

	evicted := 0
	for id, e := range candidates {
		e.mu.Lock()
		expired := !e.evicted && e.session.LastActivity.Before(cutoff)
		e.mu.Unlock()
		if !expired {
			continue
		}
		if err := m.evict(ctx, id, e); err != nil {
			m.logger.Warn("Failed to evict session", "session_id", id, "error", err)
			continue
		}
		evicted++
	}

	if m.snapshots != nil {
		evicted += m.pruneSnapshots(ctx, cutoff)
	}
	return evicted
}

// evict deletes the snapshot before the memory entry, so a crash in between leaves only the
// in-memory copy, which dies with the process.
func (m *Manager) evict(ctx context.Context, id string, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil
	}

	if m.snapshots != nil {
		if err := m.snapshots.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}

	m.mu.Lock()
	if m.entries[id] == e {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	e.evicted = true
	return nil
}

// pruneSnapshots removes stale snapshots that have no live session.
func (m *Manager) pruneSnapshots(ctx context.Context, cutoff time.Time) int {
	snaps, err := m.snapshots.List(ctx)
	if err != nil {
		m.logger.Warn("Failed to list session snapshots", "error", err)
		return 0
	}
	removed := 0
	for _, snap := range snaps {
		m.mu.RLock()
		_, live := m.entries[snap.ID]
		m.mu.RUnlock()
		if live || !snap.LastActivity.Before(cutoff) {
			continue
		}
		if err := m.snapshots.Delete(ctx, snap.ID); err == nil {
			removed++
		}
	}
	return removed
}

// Restore loads unexpired snapshots into memory. Sessions already live are left alone.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.snapshots == nil {
		return 0, nil
	}
	snaps, err := m.snapshots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := m.now().Add(-m.maxAge)
	restored := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		if snap.LastActivity.Before(cutoff) {
			if err := m.snapshots.Delete(ctx, snap.ID); err != nil {
				m.logger.Warn("Failed to delete stale snapshot", "session_id", snap.ID, "error", err)
			}
			continue
		}
		if _, exists := m.entries[snap.ID]; exists {
			continue
		}
		snap.ensureMaps()
		m.entries[snap.ID] = &entry{session: snap}
		restored++
	}
	return restored, nil
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ApplyModifications returns a copy of record with mods overlaid. The input is never changed.
func ApplyModifications(record model.FinancialRecord, mods map[string]any) (model.FinancialRecord, error) {
	out := record.Clone()
	for field, value := range mods {
		if !model.HasField(field) {
			return record, fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		if err := out.Info.Set(field, value); err != nil {
			return record, err
		}
	}
	return out, nil
}

func plainValue(v any) any {
	if d, ok := v.(*decimal.Decimal); ok {
		if d == nil {
			return nil
		}
		return d.String()
	}
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
