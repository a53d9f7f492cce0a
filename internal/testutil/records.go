package testutil

import (
	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

// RecordBuilder builds financial records for tests with a fluent API.
type RecordBuilder struct {
	rec model.FinancialRecord
}

// NewRecord starts a rule-based USD invoice record with the given source id.
func NewRecord(sourceID string) *RecordBuilder {
	return &RecordBuilder{rec: model.FinancialRecord{
		SourceID:   sourceID,
		Subject:    "Invoice " + sourceID,
		Sender:     "billing@acme.com",
		ReceivedAt: "Thu, 01 Feb 2024 09:00:00 +0000",
		Extraction: model.Extraction{
			Info: model.FinancialInfo{
				DocumentType: model.DocumentInvoice,
				Status:       model.StatusPendingReceipt,
				Counterparty: "Acme",
			},
			Provenance: model.Provenance{
				Method:     model.MethodRuleBased,
				Confidence: 0.3,
			},
		},
	}}
}

// WithSubject sets the subject line.
func (b *RecordBuilder) WithSubject(subject string) *RecordBuilder {
	b.rec.Subject = subject
	return b
}

// WithType sets the document type.
func (b *RecordBuilder) WithType(t model.DocumentType) *RecordBuilder {
	b.rec.Info.DocumentType = t
	return b
}

// WithStatus sets the payment status.
func (b *RecordBuilder) WithStatus(s model.Status) *RecordBuilder {
	b.rec.Info.Status = s
	return b
}

// WithCounterparty sets the counterparty.
func (b *RecordBuilder) WithCounterparty(name string) *RecordBuilder {
	b.rec.Info.Counterparty = name
	return b
}

// WithAmount sets the original amount. USD amounts get a rate of 1.
func (b *RecordBuilder) WithAmount(amount, currency string) *RecordBuilder {
	d := decimal.RequireFromString(amount)
	b.rec.Info.Amount = &d
	b.rec.Info.Currency = currency
	if currency == "USD" {
		usd := d
		one := decimal.NewFromInt(1)
		b.rec.Info.USDAmount = &usd
		b.rec.Info.ExchangeRate = &one
	}
	return b
}

// WithConversion sets the USD amount and exchange rate explicitly.
func (b *RecordBuilder) WithConversion(usdAmount, rate string) *RecordBuilder {
	usd := decimal.RequireFromString(usdAmount)
	r := decimal.RequireFromString(rate)
	b.rec.Info.USDAmount = &usd
	b.rec.Info.ExchangeRate = &r
	return b
}

// WithDueDate sets the due date text.
func (b *RecordBuilder) WithDueDate(s string) *RecordBuilder {
	b.rec.Info.DueDate = s
	return b
}

// WithMethod sets the analysis method and confidence.
func (b *RecordBuilder) WithMethod(m model.AnalysisMethod, confidence float64) *RecordBuilder {
	b.rec.Provenance.Method = m
	b.rec.Provenance.Confidence = confidence
	return b
}

// Build returns a copy of the record.
func (b *RecordBuilder) Build() model.FinancialRecord {
	return b.rec.Clone()
}
