package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		want  time.Time
		name  string
		input string
		ok    bool
	}{
		{name: "iso", input: "2024-02-15", want: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "slash year first", input: "2024/02/15", want: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "month first when day first impossible", input: "02/15/2024", want: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "day first wins when ambiguous", input: "03/04/2024", want: time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "short month name", input: "Feb 15, 2024", want: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "long month name", input: "February 5, 2024", want: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "single digit day and month", input: "2/5/2024", want: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "single digit month", input: "12/5/2024", want: time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "month first single digit day", input: "2/15/2024", want: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "day month name", input: "6 Feb 2024", want: time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "header single digit day", input: "Tue, 6 Feb 2024 10:00:00 +0000", want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "header padded day", input: "Tue, 06 Feb 2024 10:00:00 +0000", want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "header with offset", input: "Tue, 6 Feb 2024 05:00:00 -0500", want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "header without weekday", input: "6 Feb 2024 10:00:00 +0000", want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "header with zone comment", input: "Tue, 6 Feb 2024 10:00:00 +0000 (UTC)", want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "garbage", input: "next tuesday", ok: false},
		{name: "empty", input: "  ", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}
