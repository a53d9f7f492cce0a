package currency

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// staticUSDRates holds the value of one unit of each currency in USD.
var staticUSDRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("1.10"),
	"GBP": decimal.RequireFromString("1.27"),
	"JPY": decimal.RequireFromString("0.0068"),
	"CNY": decimal.RequireFromString("0.14"),
	"CAD": decimal.RequireFromString("0.74"),
	"AUD": decimal.RequireFromString("0.67"),
	"CHF": decimal.RequireFromString("1.12"),
	"HKD": decimal.RequireFromString("0.13"),
	"SGD": decimal.RequireFromString("0.74"),
	"INR": decimal.RequireFromString("0.012"),
	"KRW": decimal.RequireFromString("0.00075"),
	"BRL": decimal.RequireFromString("0.20"),
	"MXN": decimal.RequireFromString("0.059"),
	"RUB": decimal.RequireFromString("0.011"),
}

// StaticSource answers from a fixed table, triangulating through USD.
type StaticSource struct{}

// NewStaticSource creates the last-resort source.
func NewStaticSource() *StaticSource { return &StaticSource{} }

// Name identifies the source in logs and metrics.
func (StaticSource) Name() string { return "static" }

// Rate returns table[from] / table[to]; with USD = 1 this covers both direct and cross rates.
func (StaticSource) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	fromUSD, ok := staticUSDRates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("no static rate for %s", from)
	}
	toUSD, ok := staticUSDRates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no static rate for %s", to)
	}
	if to == USD {
		return fromUSD, nil
	}
	return fromUSD.Div(toUSD), nil
}

// StaticRate exposes the table value for a currency in USD.
func StaticRate(code string) (decimal.Decimal, bool) {
	r, ok := staticUSDRates[normalizeCode(code)]
	return r, ok
}

// StaticCurrencies lists the codes covered by the static table.
func StaticCurrencies() []string {
	codes := make([]string, 0, len(staticUSDRates))
	for code := range staticUSDRates {
		codes = append(codes, code)
	}
	return codes
}
