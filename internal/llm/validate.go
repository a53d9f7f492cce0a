package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

const defaultConfidence = 0.5

var supportedCurrencies = map[string]bool{
	"USD": true, "EUR": true, "CNY": true, "JPY": true,
	"GBP": true, "AUD": true, "CAD": true, "CHF": true,
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"¥": "JPY",
	"£": "GBP",
}

var statusSynonyms = map[string]model.Status{
	"payment completed": model.StatusPaid,
	"completed":         model.StatusPaid,
	"settled":           model.StatusPaid,
	"receivable":        model.StatusPendingReceipt,
	"payable":           model.StatusPendingPayment,
	"pending":           model.StatusPendingPayment,
}

// Validate normalizes a parsed reply into an extraction. Missing document type and counterparty
// are backfilled from the subject.
func Validate(raw map[string]any, subject string) model.Extraction {
	info := model.FinancialInfo{
		Amount:       validNumber(raw["amount"]),
		USDAmount:    validNumber(raw["usd_amount"]),
		ExchangeRate: validNumber(raw["exchange_rate"]),
		Currency:     validCurrency(raw["currency"]),
		Status:       validStatus(raw["status"]),
		Counterparty: stringValue(raw["counterparty"]),
		IssueDate:    stringValue(raw["issue_date"]),
		DueDate:      stringValue(raw["due_date"]),
		StartDate:    stringValue(raw["start_date"]),
	}

	docType := stringValue(raw["document_type"])
	if docType == "" {
		info.DocumentType = extract.InferDocumentType(subject)
	} else if d, ok := model.ParseDocumentType(docType); ok {
		info.DocumentType = d
	} else {
		info.DocumentType = model.DocumentOther
	}

	if info.Counterparty == "" {
		info.Counterparty = extract.CounterpartyFor(subject)
	}

	return model.Extraction{
		Info: info,
		Provenance: model.Provenance{
			Method:            model.MethodLLM,
			Confidence:        validConfidence(raw["confidence"]),
			Description:       stringValue(raw["description"]),
			Anomalies:         stringList(raw["anomalies"]),
			ExtractedEntities: stringList(raw["extracted_entities"]),
		},
	}
}

func validNumber(v any) *decimal.Decimal {
	if _, ok := v.(bool); ok {
		return nil
	}
	d, err := model.ToDecimal(v)
	if err != nil {
		return nil
	}
	return d
}

func validCurrency(v any) string {
	s := strings.ToUpper(strings.TrimSpace(stringValue(v)))
	if s == "" {
		return ""
	}
	if supportedCurrencies[s] {
		return s
	}
	return currencySymbols[s]
}

func validStatus(v any) model.Status {
	s := strings.ToLower(strings.TrimSpace(stringValue(v)))
	if st, ok := model.ParseStatus(s); ok {
		return st
	}
	if st, ok := statusSynonyms[s]; ok {
		return st
	}
	return model.StatusOther
}

func validConfidence(v any) float64 {
	c, ok := toFloat(v)
	if !ok {
		return defaultConfidence
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func stringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(list); s != "" {
			out = append(out, s)
		}
	}
	return out
}
