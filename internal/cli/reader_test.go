package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_ReadLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single line", input: "c\n", want: []string{"c"}},
		{name: "trims whitespace", input: "  amount=12.50 \r\n", want: []string{"amount=12.50"}},
		{name: "multiple lines", input: "m\nstatus=paid\n\n", want: []string{"m", "status=paid", ""}},
		{name: "unterminated last line", input: "s", want: []string{"s"}},
		{name: "empty input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := NewLineReader(strings.NewReader(tt.input))
			for _, want := range tt.want {
				got, err := lr.ReadLine(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			_, err := lr.ReadLine(context.Background())
			assert.ErrorIs(t, err, io.EOF)
			_, err = lr.ReadLine(context.Background())
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestLineReader_Cancellation(t *testing.T) {
	t.Run("already canceled", func(t *testing.T) {
		lr := NewLineReader(strings.NewReader("c\n"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := lr.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)
	})

	t.Run("line typed after cancel is kept", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pr.Close() }()

		lr := NewLineReader(pr)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := lr.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)

		go func() {
			_, _ = io.WriteString(pw, "confirm\n")
			_ = pw.Close()
		}()

		got, err := lr.ReadLine(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "confirm", got)
	})
}

func TestNewLineReader_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewLineReader(nil) })
}
