package llm

import (
	"fmt"

	"github.com/Veraticus/finmail/internal/model"
)

// maxBodyChars bounds how much of the email body is sent to the model.
const maxBodyChars = 2000

// BuildPrompt renders the analysis prompt for one email.
func BuildPrompt(subject, body string, hint model.DocumentType) string {
	runes := []rune(body)
	if len(runes) > maxBodyChars {
		body = string(runes[:maxBodyChars])
	}

	typeContext := ""
	if hint != "" {
		typeContext = fmt.Sprintf("\nThis appears to be a %s email.\n", hint)
	}

	return fmt.Sprintf(`Analyze the following email and extract structured financial information.

Subject: %s

Body:
%s
%s
Return a JSON object with exactly these fields:
1. document_type: one of invoice, order, statement, payment, receipt, other
2. status: one of pending_receipt (we are asked to pay), pending_payment (payment required), paid, other
3. counterparty: name of the other party
4. amount: number
5. currency: ISO code such as USD, EUR, CNY, JPY, GBP
6. usd_amount: amount converted to USD, if known
7. exchange_rate: rate used for the conversion, if known
8. issue_date: YYYY-MM-DD
9. due_date: YYYY-MM-DD
10. description: one sentence summary of the transaction
11. confidence: number between 0 and 1
12. anomalies: list of suspicious or unusual points
13. extracted_entities: list of key entities found

Use null for anything you cannot determine.

Respond with JSON only, no other text.`, subject, body, typeContext)
}
