package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/finmail/internal/currency"
	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/model"
)

// Policy holds the confidence constants that decide between LLM and rule-based output.
type Policy struct {
	// LLMPreferThreshold is the confidence an LLM result must exceed to be used over rules.
	LLMPreferThreshold float64
	RuleConfidence     float64
	SimpleConfidence   float64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		LLMPreferThreshold: 0.7,
		RuleConfidence:     extract.RuleConfidence,
		SimpleConfidence:   extract.SimpleConfidence,
	}
}

// Choose picks the LLM result when it is confident enough, otherwise the rule-based result.
// When rules found nothing the message is dropped even if the LLM produced something.
func (p Policy) Choose(llmResult Analysis, rule model.Extraction, ruleOK bool) (model.Extraction, bool) {
	if llmResult.Provenance.Confidence > p.LLMPreferThreshold {
		return llmResult.Extraction, true
	}
	return rule, ruleOK
}

// FallbackDepth records how far the analyzer had to fall back.
type FallbackDepth string

// Fallback depths.
const (
	FallbackNone   FallbackDepth = ""
	FallbackFull   FallbackDepth = "full"
	FallbackSimple FallbackDepth = "simple"
)

// Analysis is the analyzer's output for one email.
type Analysis struct {
	Cause         error         `json:"-"`
	FallbackDepth FallbackDepth `json:"fallback_depth,omitempty"`
	model.Extraction
}

// RuleExtractor is the rule-based extractor used as a fallback.
type RuleExtractor interface {
	Extract(ctx context.Context, subject, body string) (model.Extraction, bool)
}

// Analyzer extracts financial fields with a language model and falls back to rules on failure.
type Analyzer struct {
	client Client
	rules  RuleExtractor
	rater  currency.Rater
	logger *slog.Logger
	policy Policy
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithRules wires the full rule-based extractor for fallbacks.
func WithRules(rules RuleExtractor) AnalyzerOption {
	return func(a *Analyzer) { a.rules = rules }
}

// WithRater enables USD normalization of LLM amounts.
func WithRater(rater currency.Rater) AnalyzerOption {
	return func(a *Analyzer) { a.rater = rater }
}

// WithLogger sets the analyzer logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = logger }
}

// WithPolicy overrides the default confidence policy.
func WithPolicy(p Policy) AnalyzerOption {
	return func(a *Analyzer) { a.policy = p }
}

// NewAnalyzer creates an analyzer. A nil client makes every call take the fallback path.
func NewAnalyzer(client Client, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client: client,
		logger: slog.Default(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the analyzer's confidence policy.
func (a *Analyzer) Policy() Policy {
	return a.policy
}

// Analyze never fails: model errors produce a fallback analysis with Cause set.
func (a *Analyzer) Analyze(ctx context.Context, subject, body string, hint model.DocumentType) Analysis {
	if a.client == nil {
		return a.fallback(ctx, subject, body, fmt.Errorf("no language model configured"))
	}

	reply, err := a.client.Complete(ctx, BuildPrompt(subject, body, hint))
	if err != nil {
		a.logger.Warn("LLM analysis failed, using rules", "subject", subject, "error", err)
		return a.fallback(ctx, subject, body, err)
	}

	ex := Validate(ParseReply(reply), subject)

	if usd, rate := currency.Normalize(ctx, a.rater, ex.Info.Amount, ex.Info.Currency); usd != nil {
		ex.Info.USDAmount = usd
		ex.Info.ExchangeRate = rate
	}

	ex.Provenance.Anomalies = mergeAnomalies(ex.Provenance.Anomalies, DetectAnomalies(ex.Info, subject))

	a.logger.Debug("LLM analysis complete",
		"subject", subject,
		"document_type", ex.Info.DocumentType,
		"confidence", ex.Provenance.Confidence)

	return Analysis{Extraction: ex}
}

func (a *Analyzer) fallback(ctx context.Context, subject, body string, cause error) Analysis {
	if a.rules != nil {
		if ex, ok := a.rules.Extract(ctx, subject, body); ok {
			ex.Provenance.Method = model.MethodFallback
			ex.Provenance.Confidence = a.policy.RuleConfidence
			return Analysis{Extraction: ex, FallbackDepth: FallbackFull, Cause: cause}
		}
	}

	ex := extract.Simple(subject, body)
	ex.Provenance.Method = model.MethodFallback
	ex.Provenance.Confidence = a.policy.SimpleConfidence
	return Analysis{Extraction: ex, FallbackDepth: FallbackSimple, Cause: cause}
}

func mergeAnomalies(existing, found []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range found {
		if !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}
