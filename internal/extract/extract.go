// Package extract implements rule-based extraction of financial fields from email text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/finmail/internal/currency"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

// Confidence assigned to rule-based output.
const (
	RuleConfidence   = 0.3
	SimpleConfidence = 0.2
)

// UnknownCounterparty is used when no counterparty pattern matched.
const UnknownCounterparty = "Unknown"

// Extractor applies the subject gate and the field patterns.
type Extractor struct {
	rater  currency.Rater
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an extractor. rater may be nil, in which case non-USD amounts stay unconverted.
func New(rater currency.Rater, opts ...Option) *Extractor {
	e := &Extractor{
		rater:  rater,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the financial fields found in a message. The boolean is false when the subject
// fails the gate or nothing extractable was found.
func (e *Extractor) Extract(ctx context.Context, subject, body string) (model.Extraction, bool) {
	if !IsFinancial(subject) {
		return model.Extraction{}, false
	}

	var entities []string
	info := model.FinancialInfo{
		DocumentType: DocumentTypeFor(subject),
	}

	amount, code, found := Amount(body)
	if found {
		info.Amount = model.Dec(amount)
		info.Currency = code
		entities = append(entities, model.FieldAmount, model.FieldCurrency)
	}

	info.Status = StatusFor(body)
	if info.Status != model.StatusOther {
		entities = append(entities, model.FieldStatus)
	}

	info.Counterparty = Counterparty(subject, body)
	if info.Counterparty != UnknownCounterparty {
		entities = append(entities, model.FieldCounterparty)
	}

	dates := Dates(body)
	for _, field := range []string{model.FieldIssueDate, model.FieldDueDate, model.FieldStartDate} {
		v, ok := dates[field]
		if !ok {
			continue
		}
		// Field names are fixed above, so Set cannot fail here.
		_ = info.Set(field, v)
		entities = append(entities, field)
	}

	if !found && info.Status == model.StatusOther && info.Counterparty == UnknownCounterparty && len(dates) == 0 {
		e.logger.Debug("Financial subject yielded no fields", "subject", subject)
		return model.Extraction{}, false
	}

	info.USDAmount, info.ExchangeRate = currency.Normalize(ctx, e.rater, info.Amount, info.Currency)

	return model.Extraction{
		Info: info,
		Provenance: model.Provenance{
			Method:            model.MethodRuleBased,
			Confidence:        RuleConfidence,
			Anomalies:         []string{},
			ExtractedEntities: nonNil(entities),
			Description:       fmt.Sprintf("%s from %s", info.DocumentType, info.Counterparty),
		},
	}, true
}

// Simple is the minimal heuristic: document type from the subject and a dollar amount from the body.
// It applies no gate and never fails.
func Simple(subject, body string) model.Extraction {
	info := model.FinancialInfo{
		DocumentType: DocumentTypeFor(subject),
		Status:       model.StatusOther,
		Counterparty: UnknownCounterparty,
	}
	if m := amountPatterns[0].regex.FindStringSubmatch(body); m != nil {
		if d, err := parseAmount(m[1]); err == nil {
			info.Amount = model.Dec(d)
			info.Currency = currency.USD
			info.USDAmount = model.Dec(d)
			info.ExchangeRate = model.Dec(decimal.NewFromInt(1))
		}
	}
	return model.Extraction{
		Info: info,
		Provenance: model.Provenance{
			Method:            model.MethodSimpleRuleBased,
			Confidence:        SimpleConfidence,
			Anomalies:         []string{},
			ExtractedEntities: []string{},
			Description:       string(info.DocumentType),
		},
	}
}

// IsFinancial reports whether the subject contains one of the gate keywords.
func IsFinancial(subject string) bool {
	lower := strings.ToLower(subject)
	for _, kw := range gateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DocumentTypeFor maps a subject to invoice, order or statement, else other.
func DocumentTypeFor(subject string) model.DocumentType {
	lower := strings.ToLower(subject)
	for _, dk := range documentKeywords {
		if strings.Contains(lower, dk.keyword) {
			return dk.docType
		}
	}
	return model.DocumentOther
}

// InferDocumentType extends DocumentTypeFor with payment and receipt subjects.
func InferDocumentType(subject string) model.DocumentType {
	if d := DocumentTypeFor(subject); d != model.DocumentOther {
		return d
	}
	lower := strings.ToLower(subject)
	switch {
	case strings.Contains(lower, "payment"):
		return model.DocumentPayment
	case strings.Contains(lower, "receipt"):
		return model.DocumentReceipt
	}
	return model.DocumentOther
}

// Amount finds the first tagged amount in body. Commas are stripped before parsing.
func Amount(body string) (decimal.Decimal, string, bool) {
	for _, p := range amountPatterns {
		m := p.regex.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		d, err := parseAmount(m[1])
		if err != nil {
			continue
		}
		return d, p.currency, true
	}
	return decimal.Zero, "", false
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

// StatusFor classifies the payment state from body phrases.
func StatusFor(body string) model.Status {
	lower := strings.ToLower(body)
	for _, set := range statusPhrases {
		for _, phrase := range set.phrases {
			if strings.Contains(lower, phrase) {
				return set.status
			}
		}
	}
	return model.StatusOther
}

// CounterpartyFor applies the subject patterns only.
func CounterpartyFor(subject string) string {
	for _, re := range counterpartyPatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return UnknownCounterparty
}

// Counterparty applies the subject patterns, then looks for an email address in the body.
func Counterparty(subject, body string) string {
	if name := CounterpartyFor(subject); name != UnknownCounterparty {
		return name
	}
	if addr := emailAddress.FindString(body); addr != "" {
		return addr
	}
	return UnknownCounterparty
}

// Dates returns the matched text for each date field found in body.
func Dates(body string) map[string]string {
	out := make(map[string]string)
	for _, dp := range datePatterns {
		for _, re := range dp.patterns {
			if m := re.FindStringSubmatch(body); m != nil {
				out[dp.field] = m[1]
				break
			}
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
