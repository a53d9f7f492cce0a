package model

import (
	"net/mail"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first successful parse wins. Day and month fields use the
// unpadded verbs, which also accept zero-padded input.
// Day-first precedes month-first for slash dates, so 2/1/2006 reads as 2 January.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2/1/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

// ParseDate parses the date shapes found in financial emails and their Date headers.
// It returns false when nothing matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Remaining RFC 5322 shapes: no weekday, "(UTC)" comments, obsolete zones.
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
