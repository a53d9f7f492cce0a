package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"
	"github.com/shopspring/decimal"
)

// recordRow is the column view of a financial record shared by both backends.
// Amounts travel as decimal strings so neither driver rounds them.
type recordRow struct {
	emailDate    *time.Time
	dueDate      *time.Time
	issueDate    *time.Time
	startDate    *time.Time
	amount       *string
	currency     *string
	usdAmount    *string
	exchangeRate *string
	documentType *string
	status       *string
	counterparty *string
	emailID      string
	subject      string
	from         string
	bodyPreview  string
	method       string
	raw          []byte
	confidence   float64
}

func newRecordRow(rec model.FinancialRecord) (recordRow, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return recordRow{}, fmt.Errorf("failed to encode raw data: %w", err)
	}
	info := rec.Info
	return recordRow{
		emailID:      rec.SourceID,
		subject:      rec.Subject,
		from:         rec.Sender,
		emailDate:    parseDate(rec.ReceivedAt),
		bodyPreview:  rec.BodyPreview,
		documentType: nullString(string(info.DocumentType)),
		status:       nullString(string(info.Status)),
		counterparty: nullString(info.Counterparty),
		amount:       decimalString(info.Amount),
		currency:     nullString(info.Currency),
		usdAmount:    decimalString(info.USDAmount),
		exchangeRate: decimalString(info.ExchangeRate),
		dueDate:      parseDate(info.DueDate),
		issueDate:    parseDate(info.IssueDate),
		startDate:    parseDate(info.StartDate),
		confidence:   rec.Provenance.Confidence,
		method:       string(rec.Provenance.Method),
		raw:          raw,
	}, nil
}

// record rebuilds the model from raw_data, with the typed columns taking precedence.
func (r recordRow) record() (model.FinancialRecord, error) {
	var rec model.FinancialRecord
	if len(r.raw) > 0 {
		if err := json.Unmarshal(r.raw, &rec); err != nil {
			return rec, fmt.Errorf("failed to decode raw data for %s: %w", r.emailID, err)
		}
	}

	rec.SourceID = r.emailID
	rec.Subject = r.subject
	rec.Sender = r.from
	rec.BodyPreview = r.bodyPreview
	rec.Info.DocumentType = model.DocumentType(deref(r.documentType))
	rec.Info.Status = model.Status(deref(r.status))
	rec.Info.Counterparty = deref(r.counterparty)
	rec.Info.Currency = deref(r.currency)
	rec.Provenance.Confidence = r.confidence
	rec.Provenance.Method = model.AnalysisMethod(r.method)

	var err error
	if rec.Info.Amount, err = parseDecimal(r.amount); err != nil {
		return rec, err
	}
	if rec.Info.USDAmount, err = parseDecimal(r.usdAmount); err != nil {
		return rec, err
	}
	if rec.Info.ExchangeRate, err = parseDecimal(r.exchangeRate); err != nil {
		return rec, err
	}
	return rec, nil
}

// statsBuilder accumulates summary statistics row by row so decimal totals stay exact.
type statsBuilder struct {
	stats      *service.SummaryStats
	currencies map[string]struct{}
}

func newStatsBuilder() *statsBuilder {
	return &statsBuilder{
		stats: &service.SummaryStats{
			ByType:          make(map[model.DocumentType]int),
			ByStatus:        make(map[model.Status]int),
			TotalByCurrency: make(map[string]decimal.Decimal),
			TotalUSD:        decimal.Zero,
		},
		currencies: make(map[string]struct{}),
	}
}

func (b *statsBuilder) add(documentType, status, currency, amount, usdAmount *string) error {
	b.stats.TotalRecords++

	docType := model.DocumentType(deref(documentType))
	if docType == "" {
		docType = model.DocumentOther
	}
	b.stats.ByType[docType]++

	st := model.Status(deref(status))
	if st == "" {
		st = model.StatusOther
	}
	b.stats.ByStatus[st]++

	code := deref(currency)
	amt, err := parseDecimal(amount)
	if err != nil {
		return err
	}
	if amt != nil && code != "" {
		b.stats.TotalByCurrency[code] = b.stats.TotalByCurrency[code].Add(*amt)
	}

	usd, err := parseDecimal(usdAmount)
	if err != nil {
		return err
	}
	if usd != nil {
		b.stats.TotalUSD = b.stats.TotalUSD.Add(*usd)
		if code != "" {
			b.currencies[code] = struct{}{}
		}
	}
	return nil
}

func (b *statsBuilder) result() *service.SummaryStats {
	b.stats.CurrencyCount = len(b.currencies)
	return b.stats
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, ok := model.ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", *s, err)
	}
	return &d, nil
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
