package orchestrator

import (
	"context"

	"github.com/Veraticus/finmail/internal/llm"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/session"
)

// Extractor is the rule-based field extractor. It returns false when the subject is not financial.
type Extractor interface {
	Extract(ctx context.Context, subject, body string) (model.Extraction, bool)
}

// Analyzer runs the language model analysis with its own fallbacks.
type Analyzer interface {
	Analyze(ctx context.Context, subject, body string, hint model.DocumentType) llm.Analysis
	Policy() llm.Policy
}

// Sessions is the review state machine.
type Sessions interface {
	BeginProcessing(ctx context.Context, id, account string) error
	StoreCandidates(ctx context.Context, id string, records []model.FinancialRecord) ([]session.ReviewItem, error)
	Fail(ctx context.Context, id, reason string) error
	Confirm(ctx context.Context, id, sourceID string, confirmed bool, mods map[string]any) (session.ConfirmResult, error)
	Save(ctx context.Context, id string, persist session.PersistFunc) (session.SaveOutcome, error)
	Summary(ctx context.Context, id string) (session.Summary, error)
}

var (
	_ Analyzer = (*llm.Analyzer)(nil)
	_ Sessions = (*session.Manager)(nil)
)
