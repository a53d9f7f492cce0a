package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/finmail/internal/currency"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/shopspring/decimal"
)

var (
	largeAmount       = decimal.NewFromInt(1_000_000)
	verifyAmount      = decimal.NewFromInt(10_000)
	lowConfidenceMark = 0.5
)

// subjectSymbols maps currency symbols to the codes they can stand for.
var subjectSymbols = []struct {
	symbol string
	codes  []string
}{
	{"$", []string{"USD", "CAD", "AUD", "HKD", "SGD", "MXN"}},
	{"€", []string{"EUR"}},
	{"£", []string{"GBP"}},
	{"¥", []string{"JPY", "CNY"}},
}

// DetectAnomalies flags unusually large amounts and currencies that contradict the subject.
func DetectAnomalies(info model.FinancialInfo, subject string) []string {
	var out []string

	if info.Amount != nil && info.Amount.GreaterThan(largeAmount) {
		out = append(out, fmt.Sprintf("unusually large amount: %s", info.Amount.StringFixed(2)))
	}

	if info.Currency != "" {
		for _, s := range subjectSymbols {
			if !strings.Contains(subject, s.symbol) {
				continue
			}
			if !containsCode(s.codes, info.Currency) {
				out = append(out, fmt.Sprintf("currency %s does not match %s in subject", info.Currency, s.symbol))
			}
		}
	}

	return out
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Recommendations suggests follow-up actions for a reviewer.
func Recommendations(ex model.Extraction) []string {
	var out []string
	if len(ex.Provenance.Anomalies) > 0 {
		out = append(out, "Review the detected anomalies before confirming")
	}
	if ex.Provenance.Confidence < lowConfidenceMark {
		out = append(out, "Low confidence analysis, check the extracted fields manually")
	}
	if ex.Info.Amount != nil && ex.Info.Amount.GreaterThan(verifyAmount) {
		out = append(out, "Large amount, verify against the source document")
	}
	if ex.Info.Currency != "" && ex.Info.Currency != currency.USD {
		out = append(out, "Foreign currency, confirm the exchange rate")
	}
	return out
}
