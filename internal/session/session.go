// Package session tracks per-conversation review state: candidate records, confirmations,
// field modifications and their audit trail.
package session

import (
	"errors"
	"time"

	"github.com/Veraticus/finmail/internal/model"
)

// Session errors.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrRecordNotFound    = errors.New("record not found in session")
	ErrUnknownField      = model.ErrUnknownField
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrEmptySessionID    = errors.New("session ID is required")
)

// State is the current step of a review cycle.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReview     State = "review"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Modification is one audited field change.
type Modification struct {
	Timestamp time.Time `json:"timestamp"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	SourceID  string    `json:"email_id"`
	Field     string    `json:"field"`
	Reason    string    `json:"reason"`
}

// Session is one review conversation.
type Session struct {
	LastActivity  time.Time                 `json:"last_activity"`
	Confirmations map[string]bool           `json:"confirmation_status"`
	Modifications map[string]map[string]any `json:"modified_data"`
	ID            string                    `json:"session_id"`
	State         State                     `json:"state"`
	EmailAccount  string                    `json:"email_account,omitempty"`
	LastError     string                    `json:"last_error,omitempty"`
	Candidates    []model.FinancialRecord   `json:"processed_emails"`
	History       []Modification            `json:"modification_history"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:            id,
		State:         StateIdle,
		LastActivity:  now,
		Confirmations: make(map[string]bool),
		Modifications: make(map[string]map[string]any),
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s

	out.Candidates = make([]model.FinancialRecord, len(s.Candidates))
	for i, rec := range s.Candidates {
		out.Candidates[i] = rec.Clone()
	}

	out.Confirmations = make(map[string]bool, len(s.Confirmations))
	for k, v := range s.Confirmations {
		out.Confirmations[k] = v
	}

	out.Modifications = make(map[string]map[string]any, len(s.Modifications))
	for id, fields := range s.Modifications {
		m := make(map[string]any, len(fields))
		for f, v := range fields {
			m[f] = v
		}
		out.Modifications[id] = m
	}

	out.History = append([]Modification(nil), s.History...)
	return &out
}

func (s *Session) candidate(sourceID string) (*model.FinancialRecord, bool) {
	for i := range s.Candidates {
		if s.Candidates[i].SourceID == sourceID {
			return &s.Candidates[i], true
		}
	}
	return nil, false
}

// ensureMaps repairs sessions decoded from snapshots that had empty maps.
func (s *Session) ensureMaps() {
	if s.Confirmations == nil {
		s.Confirmations = make(map[string]bool)
	}
	if s.Modifications == nil {
		s.Modifications = make(map[string]map[string]any)
	}
}

// ReviewItem is the preview of a candidate shown to a reviewer.
type ReviewItem struct {
	Amount       *string            `json:"amount"`
	USDAmount    *string            `json:"usd_amount"`
	SourceID     string             `json:"email_id"`
	Subject      string             `json:"subject"`
	From         string             `json:"from"`
	Date         string             `json:"date"`
	Currency     string             `json:"currency,omitempty"`
	Counterparty string             `json:"counterparty"`
	Status       model.Status       `json:"status"`
	DocumentType model.DocumentType `json:"document_type"`
}

// PreviewSize bounds the number of items returned for review.
const PreviewSize = 5

// Preview renders the first PreviewSize candidates.
func Preview(records []model.FinancialRecord) []ReviewItem {
	n := len(records)
	if n > PreviewSize {
		n = PreviewSize
	}
	items := make([]ReviewItem, 0, n)
	for _, rec := range records[:n] {
		items = append(items, ReviewItem{
			SourceID:     rec.SourceID,
			Subject:      rec.Subject,
			From:         rec.Sender,
			Date:         rec.ReceivedAt,
			Amount:       decimalString(rec.Info.Amount),
			USDAmount:    decimalString(rec.Info.USDAmount),
			Currency:     rec.Info.Currency,
			Counterparty: rec.Info.Counterparty,
			Status:       rec.Info.Status,
			DocumentType: rec.Info.DocumentType,
		})
	}
	return items
}

// Summary describes a session for status calls.
type Summary struct {
	ConfirmationStatus map[string]bool `json:"confirmation_status"`
	SessionID          string          `json:"session_id"`
	State              State           `json:"state"`
	EmailAccount       string          `json:"email_account,omitempty"`
	LastUpdate         string          `json:"last_update"`
	ProcessedCount     int             `json:"processed_count"`
	ConfirmedCount     int             `json:"confirmed_count"`
	ModifiedCount      int             `json:"modified_count"`
	HistoryCount       int             `json:"modification_history_count"`
}

func summarize(s *Session) Summary {
	confirmations := make(map[string]bool, len(s.Confirmations))
	confirmed := 0
	for k, v := range s.Confirmations {
		confirmations[k] = v
		if v {
			confirmed++
		}
	}
	return Summary{
		SessionID:          s.ID,
		State:              s.State,
		EmailAccount:       s.EmailAccount,
		ProcessedCount:     len(s.Candidates),
		ConfirmedCount:     confirmed,
		ModifiedCount:      len(s.Modifications),
		ConfirmationStatus: confirmations,
		HistoryCount:       len(s.History),
		LastUpdate:         s.LastActivity.UTC().Format(time.RFC3339),
	}
}

// ConfirmResult reports the outcome of a confirm call.
type ConfirmResult struct {
	SourceID             string `json:"email_id"`
	State                State  `json:"session_state"`
	Confirmed            bool   `json:"confirmed"`
	ModificationsApplied int    `json:"modifications_applied"`
}
