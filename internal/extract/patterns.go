package extract

import (
	"regexp"

	"github.com/Veraticus/finmail/internal/model"
)

// gateKeywords must appear in a subject for a message to be considered financial.
var gateKeywords = []string{"invoice", "order", "statement", "payment", "bill", "receipt"}

// documentKeywords are checked in order; the first one found in the subject wins.
var documentKeywords = []struct {
	keyword string
	docType model.DocumentType
}{
	{"invoice", model.DocumentInvoice},
	{"order", model.DocumentOrder},
	{"statement", model.DocumentStatement},
}

const amountShape = `([0-9,]+(?:\.[0-9]{2})?)`

// amountPattern tags a numeric regex with the currency it implies.
type amountPattern struct {
	regex    *regexp.Regexp
	name     string
	currency string
}

// amountPatterns are tried in order against the body; the first match wins.
var amountPatterns = compileAmountPatterns([]struct{ name, currency, expr string }{
	{"dollar sign", "USD", `\$\s*`},
	{"usd code", "USD", `USD\s*`},
	{"euro sign", "EUR", `€\s*`},
	{"eur code", "EUR", `EUR\s*`},
	{"yuan sign", "CNY", `¥\s*`},
	{"cny code", "CNY", `CNY\s*`},
	{"amount label", "USD", `amount:\s*`},
	{"total label", "USD", `total:\s*`},
})

func compileAmountPatterns(defs []struct{ name, currency, expr string }) []amountPattern {
	out := make([]amountPattern, 0, len(defs))
	for _, d := range defs {
		out = append(out, amountPattern{
			name:     d.name,
			currency: d.currency,
			regex:    regexp.MustCompile(`(?i)` + d.expr + amountShape),
		})
	}
	return out
}

// statusPhrases are checked in order; the first set with a phrase present in the body wins.
var statusPhrases = []struct {
	status  model.Status
	phrases []string
}{
	{model.StatusPaid, []string{"payment received", "paid in full", "payment completed"}},
	{model.StatusPendingReceipt, []string{"payment due", "please pay", "amount due"}},
	{model.StatusPendingPayment, []string{"make payment", "pay now", "payment required"}},
}

var (
	counterpartyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)from\s+([A-Za-z\s&]+)`),
		regexp.MustCompile(`(?i)by\s+([A-Za-z\s&]+)`),
		regexp.MustCompile(`(?i)@([A-Za-z0-9]+)`),
		regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+)`),
	}
	emailAddress = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

const (
	numericDate = `([0-9]{1,2}/[0-9]{1,2}/[0-9]{4})`
	writtenDate = `([A-Za-z]+\s+[0-9]{1,2},?\s+[0-9]{4})`
)

// datePatterns holds, per field, the regexes tried in order.
var datePatterns = []struct {
	field    string
	patterns []*regexp.Regexp
}{
	{model.FieldDueDate, []*regexp.Regexp{
		regexp.MustCompile(`(?i)due date[:\s]*` + numericDate),
		regexp.MustCompile(`(?i)due[:\s]*` + writtenDate),
	}},
	{model.FieldIssueDate, []*regexp.Regexp{
		regexp.MustCompile(`(?i)date[:\s]*` + numericDate),
		regexp.MustCompile(`(?i)issued[:\s]*` + writtenDate),
	}},
	{model.FieldStartDate, []*regexp.Regexp{
		regexp.MustCompile(`(?i)start[:\s]*` + numericDate),
		regexp.MustCompile(`(?i)from[:\s]*` + writtenDate),
	}},
}
