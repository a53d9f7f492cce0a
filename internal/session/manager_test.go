package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
}

func record(id string, amount int64) model.FinancialRecord {
	return model.FinancialRecord{
		SourceID:   id,
		Subject:    "Invoice " + id,
		Sender:     "billing@acme.com",
		ReceivedAt: "Thu, 01 Feb 2024 09:00:00 +0000",
		Extraction: model.Extraction{
			Info: model.FinancialInfo{
				DocumentType: model.DocumentInvoice,
				Status:       model.StatusPendingReceipt,
				Counterparty: "Acme",
				Amount:       model.Dec(decimal.NewFromInt(amount)),
				Currency:     "USD",
				USDAmount:    model.Dec(decimal.NewFromInt(amount)),
				ExchangeRate: model.Dec(decimal.NewFromInt(1)),
			},
			Provenance: model.Provenance{Method: model.MethodRuleBased, Confidence: 0.3},
		},
	}
}

func reviewSession(t *testing.T, m *Manager, id string, records ...model.FinancialRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.BeginProcessing(ctx, id, "me@example.com"))
	_, err := m.StoreCandidates(ctx, id, records)
	require.NoError(t, err)
}

func TestManager_Workflow(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)

	require.NoError(t, m.BeginProcessing(ctx, "s1", "me@example.com"))
	preview, err := m.StoreCandidates(ctx, "s1", []model.FinancialRecord{record("A", 100), record("B", 200)})
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Equal(t, "A", preview[0].SourceID)
	assert.Equal(t, "100", *preview[0].Amount)

	res, err := m.Confirm(ctx, "s1", "A", true, nil)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, StateReview, res.State)
	assert.Zero(t, res.ModificationsApplied)

	var saved []model.FinancialRecord
	out, err := m.Save(ctx, "s1", func(_ context.Context, records []model.FinancialRecord) int {
		saved = records
		return len(records)
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "A", saved[0].SourceID)
	assert.Equal(t, 1, out.Saved)
	assert.Equal(t, 1, out.Confirmed)

	summary := out.Summary
	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.ConfirmedCount)
	assert.Equal(t, "me@example.com", summary.EmailAccount)
	assert.False(t, summary.ConfirmationStatus["B"])
}

func TestManager_ModificationOverlay(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	reviewSession(t, m, "s1", record("A", 100), record("B", 200))

	res, err := m.Confirm(ctx, "s1", "A", true, map[string]any{"amount": 500, "counterparty": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ModificationsApplied)

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "100", s.Candidates[0].Info.Amount.String())
	require.Len(t, s.History, 1)
	assert.Equal(t, "amount", s.History[0].Field)
	assert.Equal(t, "user modified: 100 -> 500", s.History[0].Reason)
	assert.Equal(t, "100", s.History[0].OldValue)
	assert.Equal(t, "500", s.History[0].NewValue)

	toSave, err := m.ConfirmedRecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, toSave, 1)
	assert.Equal(t, "500", toSave[0].Info.Amount.String())

	_, err = m.Confirm(ctx, "s1", "A", true, map[string]any{"amount": "750.25"})
	require.NoError(t, err)
	s, err = m.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.History, 2)
	assert.Equal(t, "user modified: 500 -> 750.25", s.History[1].Reason)
}

func TestManager_ConfirmRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown field records nothing", func(t *testing.T) {
		m := NewManager()
		reviewSession(t, m, "s1", record("A", 100))

		_, err := m.Confirm(ctx, "s1", "A", true, map[string]any{"amount": 1, "subject": "x"})
		require.ErrorIs(t, err, ErrUnknownField)

		s, err := m.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, s.History)
		assert.Empty(t, s.Modifications)
		assert.NotContains(t, s.Confirmations, "A")
	})

	t.Run("invalid value", func(t *testing.T) {
		m := NewManager()
		reviewSession(t, m, "s1", record("A", 100))

		_, err := m.Confirm(ctx, "s1", "A", true, map[string]any{"status": "lost"})
		require.ErrorIs(t, err, model.ErrInvalidFieldValue)
	})

	t.Run("unknown record", func(t *testing.T) {
		m := NewManager()
		reviewSession(t, m, "s1", record("A", 100))

		_, err := m.Confirm(ctx, "s1", "Z", true, nil)
		require.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("not in review", func(t *testing.T) {
		m := NewManager()
		_, err := m.Confirm(ctx, "s1", "A", true, nil)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("empty id", func(t *testing.T) {
		m := NewManager()
		_, err := m.Confirm(ctx, "", "A", true, nil)
		require.ErrorIs(t, err, ErrEmptySessionID)
	})
}

func TestManager_Transitions(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	_, err := m.StoreCandidates(ctx, "s1", []model.FinancialRecord{record("A", 1)})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.ConfirmedRecords(ctx, "s1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, m.BeginProcessing(ctx, "s1", ""))
	preview, err := m.StoreCandidates(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, preview)
	s, _ := m.Get(ctx, "s1")
	assert.Equal(t, StateCompleted, s.State)

	require.NoError(t, m.BeginProcessing(ctx, "s1", ""))
	require.NoError(t, m.Complete(ctx, "s1"))
	require.ErrorIs(t, m.Complete(ctx, "s1"), ErrInvalidTransition)

	require.NoError(t, m.Fail(ctx, "s1", "auth failed"))
	s, _ = m.Get(ctx, "s1")
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, "auth failed", s.LastError)

	require.NoError(t, m.BeginProcessing(ctx, "s1", ""))
	s, _ = m.Get(ctx, "s1")
	assert.Equal(t, StateProcessing, s.State)
	assert.Empty(t, s.LastError)
}

func TestManager_NewPassReplacesCandidates(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	reviewSession(t, m, "s1", record("A", 1), record("B", 2))
	_, err := m.Confirm(ctx, "s1", "A", true, map[string]any{"amount": 9})
	require.NoError(t, err)

	reviewSession(t, m, "s1", record("C", 3))

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.Candidates, 1)
	assert.Equal(t, "C", s.Candidates[0].SourceID)
	assert.True(t, s.Confirmations["A"])
	assert.Len(t, s.History, 1)

	toSave, err := m.ConfirmedRecords(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, toSave)
}

func TestManager_SaveNothingConfirmed(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	reviewSession(t, m, "s1", record("A", 1))

	called := false
	out, err := m.Save(ctx, "s1", func(context.Context, []model.FinancialRecord) int {
		called = true
		return 0
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Zero(t, out.Confirmed)
	assert.Equal(t, StateReview, out.Summary.State)

	_, err = m.Save(ctx, "fresh", nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_SaveHoldsSessionLock(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm during save waits and is rejected", func(t *testing.T) {
		m := NewManager()
		reviewSession(t, m, "s1", record("A", 1), record("B", 2))
		_, err := m.Confirm(ctx, "s1", "A", true, nil)
		require.NoError(t, err)

		confirmDone := make(chan error, 1)
		out, err := m.Save(ctx, "s1", func(_ context.Context, records []model.FinancialRecord) int {
			go func() {
				_, confirmErr := m.Confirm(ctx, "s1", "B", true, nil)
				confirmDone <- confirmErr
			}()
			select {
			case confirmErr := <-confirmDone:
				t.Error("confirm ran while the save was in progress")
				confirmDone <- confirmErr
			case <-time.After(50 * time.Millisecond):
			}
			return len(records)
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Saved)
		assert.Equal(t, StateCompleted, out.Summary.State)

		require.ErrorIs(t, <-confirmDone, ErrInvalidTransition)
		s, err := m.Get(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, s.Confirmations["B"])
	})

	t.Run("new pass during save starts after it", func(t *testing.T) {
		m := NewManager()
		reviewSession(t, m, "s1", record("A", 1))
		_, err := m.Confirm(ctx, "s1", "A", true, nil)
		require.NoError(t, err)

		beginDone := make(chan error, 1)
		out, err := m.Save(ctx, "s1", func(_ context.Context, records []model.FinancialRecord) int {
			go func() { beginDone <- m.BeginProcessing(ctx, "s1", "") }()
			time.Sleep(50 * time.Millisecond)
			return len(records)
		})
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, out.Summary.State)

		require.NoError(t, <-beginDone)
		s, err := m.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, StateProcessing, s.State)
	})
}

func TestManager_PreviewBounded(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var records []model.FinancialRecord
	for i := 0; i < 8; i++ {
		records = append(records, record(fmt.Sprintf("id-%d", i), int64(i)))
	}
	require.NoError(t, m.BeginProcessing(ctx, "s1", ""))
	preview, err := m.StoreCandidates(ctx, "s1", records)
	require.NoError(t, err)
	assert.Len(t, preview, PreviewSize)

	summary, err := m.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 8, summary.ProcessedCount)
}

func TestManager_ConcurrentConfirms(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	reviewSession(t, m, "s1", record("A", 0))

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := m.Confirm(ctx, "s1", "A", true, map[string]any{"amount": n})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s.History, 50)
	for i := 1; i < len(s.History); i++ {
		assert.Equal(t, s.History[i-1].NewValue, s.History[i].OldValue)
	}
}

func TestManager_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	m := NewManager(WithClock(clock.Now), WithSnapshots(store), WithMaxAge(24*time.Hour))
	reviewSession(t, m, "old", record("A", 1))

	clock.Advance(23 * time.Hour)
	reviewSession(t, m, "fresh", record("B", 1))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, m.CleanupExpired(ctx))
	assert.Equal(t, 1, m.Len())

	_, err = store.Load(ctx, "old")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Load(ctx, "fresh")
	require.NoError(t, err)

	s, err := m.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	first := NewManager(WithClock(clock.Now), WithSnapshots(store))
	reviewSession(t, first, "stale", record("A", 1))
	clock.Advance(30 * time.Hour)
	reviewSession(t, first, "live", record("B", 7))
	_, err = first.Confirm(ctx, "live", "B", true, map[string]any{"amount": 8})
	require.NoError(t, err)

	second := NewManager(WithClock(clock.Now), WithSnapshots(store))
	restored, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	s, err := second.Get(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, StateReview, s.State)
	assert.True(t, s.Confirmations["B"])

	toSave, err := second.ConfirmedRecords(ctx, "live")
	require.NoError(t, err)
	require.Len(t, toSave, 1)
	assert.Equal(t, "8", toSave[0].Info.Amount.String())

	snaps, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)
	m := NewManager(WithSnapshots(store))
	reviewSession(t, m, "s1", record("A", 1))

	require.NoError(t, m.Clear(ctx, "s1"))
	assert.Zero(t, m.Len())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestManager_StartStop(t *testing.T) {
	clock := newClock()
	m := NewManager(WithClock(clock.Now), WithCleanupInterval(10*time.Millisecond), WithMaxAge(time.Hour))
	_, err := m.Get(context.Background(), "s1")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	m.Start()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
	m.Stop()
	m.Stop()

	NewManager().Stop()
}

func TestApplyModifications(t *testing.T) {
	rec := record("A", 100)

	out, err := ApplyModifications(rec, map[string]any{"currency": "eur", "due_date": "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", out.Info.Currency)
	assert.Equal(t, "2024-03-01", out.Info.DueDate)
	assert.Equal(t, "USD", rec.Info.Currency)

	_, err = ApplyModifications(rec, map[string]any{"from": "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
}
