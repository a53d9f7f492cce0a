// Package mailbox implements mailbox search over the Gmail API and IMAP.
package mailbox

import (
	"context"

	"github.com/Veraticus/finmail/internal/service"
)

// DefaultQuery selects messages whose subject names a financial document.
const DefaultQuery = "subject:(invoice OR order OR statement)"

// DefaultMaxResults caps a search when the caller gives no limit.
const DefaultMaxResults = 50

func normalize(query string, maxResults int) (string, int) {
	if query == "" {
		query = DefaultQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return query, maxResults
}

// Static always opens the same mailbox regardless of account.
type Static struct {
	Mailbox service.Mailbox
}

// Open returns the wrapped mailbox.
func (s Static) Open(_ context.Context, _ string) (service.Mailbox, error) {
	return s.Mailbox, nil
}
