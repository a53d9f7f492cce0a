// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DocumentType identifies the kind of financial document an email carries.
type DocumentType string

// Document type constants.
const (
	DocumentInvoice   DocumentType = "invoice"
	DocumentOrder     DocumentType = "order"
	DocumentStatement DocumentType = "statement"
	DocumentPayment   DocumentType = "payment"
	DocumentReceipt   DocumentType = "receipt"
	DocumentOther     DocumentType = "other"
)

// Valid reports whether d is one of the known document types.
func (d DocumentType) Valid() bool {
	switch d {
	case DocumentInvoice, DocumentOrder, DocumentStatement, DocumentPayment, DocumentReceipt, DocumentOther:
		return true
	}
	return false
}

// ParseDocumentType normalizes free text into a DocumentType, returning false when it is not recognized.
func ParseDocumentType(s string) (DocumentType, bool) {
	d := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	return d, d.Valid()
}

// Status captures the payment state of a document.
type Status string

// Payment status constants.
const (
	// StatusPendingReceipt means the sender is asking us to pay and money is expected to move to them.
	StatusPendingReceipt Status = "pending_receipt"
	// StatusPendingPayment means a payment is required from the recipient.
	StatusPendingPayment Status = "pending_payment"
	// StatusPaid means the document confirms a completed payment.
	StatusPaid Status = "paid"
	// StatusOther is used when no payment phrase matched.
	StatusOther Status = "other"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingReceipt, StatusPendingPayment, StatusPaid, StatusOther:
		return true
	}
	return false
}

// ParseStatus normalizes free text into a Status, returning false when it is not recognized.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// AnalysisMethod records which extraction path produced a record.
type AnalysisMethod string

// Analysis method constants.
const (
	MethodLLM             AnalysisMethod = "llm"
	MethodRuleBased       AnalysisMethod = "rule_based"
	MethodSimpleRuleBased AnalysisMethod = "simple_rule_based"
	MethodFallback        AnalysisMethod = "rule_based_fallback"
)

// FinancialInfo holds the extracted financial fields of a document.
// These are the only fields a reviewer may modify.
type FinancialInfo struct {
	Amount       *decimal.Decimal `json:"amount"`
	USDAmount    *decimal.Decimal `json:"usd_amount"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
	DocumentType DocumentType     `json:"document_type"`
	Status       Status           `json:"status"`
	Counterparty string           `json:"counterparty"`
	Currency     string           `json:"currency,omitempty"`
	IssueDate    string           `json:"issue_date,omitempty"`
	DueDate      string           `json:"due_date,omitempty"`
	StartDate    string           `json:"start_date,omitempty"`
}

// Provenance describes how confident the pipeline is in an extraction and how it was produced.
type Provenance struct {
	Method            AnalysisMethod `json:"analysis_method"`
	Description       string         `json:"description,omitempty"`
	Anomalies         []string       `json:"anomalies"`
	ExtractedEntities []string       `json:"extracted_entities"`
	Confidence        float64        `json:"confidence"`
}

// Extraction is the output of either extractor for a single email.
type Extraction struct {
	Provenance Provenance    `json:"analysis"`
	Info       FinancialInfo `json:"financial_info"`
}

// FinancialRecord is one extracted document tied to the mailbox message it came from.
type FinancialRecord struct {
	SourceID    string `json:"source_id"`
	Subject     string `json:"subject"`
	Sender      string `json:"from"`
	ReceivedAt  string `json:"date"`
	BodyPreview string `json:"body_preview,omitempty"`
	Extraction
}

const bodyPreviewLength = 200

// NewRecord builds a record from a mailbox message and its extraction.
func NewRecord(email Email, ex Extraction) FinancialRecord {
	return FinancialRecord{
		SourceID:    email.ID,
		Subject:     email.Subject,
		Sender:      email.From,
		ReceivedAt:  email.Date,
		BodyPreview: Preview(email.Body),
		Extraction:  ex,
	}
}

// Preview shortens a body to the stored preview length.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= bodyPreviewLength {
		return body
	}
	return string(runes[:bodyPreviewLength]) + "..."
}

// Clone returns a deep copy so callers can overlay changes without touching the original.
func (r FinancialRecord) Clone() FinancialRecord {
	out := r
	out.Info = r.Info.clone()
	out.Provenance.Anomalies = append([]string(nil), r.Provenance.Anomalies...)
	out.Provenance.ExtractedEntities = append([]string(nil), r.Provenance.ExtractedEntities...)
	return out
}

func (f FinancialInfo) clone() FinancialInfo {
	out := f
	out.Amount = copyDecimal(f.Amount)
	out.USDAmount = copyDecimal(f.USDAmount)
	out.ExchangeRate = copyDecimal(f.ExchangeRate)
	return out
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Dec is a small helper for building optional decimals.
func Dec(d decimal.Decimal) *decimal.Decimal {
	return &d
}
