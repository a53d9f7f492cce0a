package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when the context ends before a line arrives.
var ErrInputCancelled = errors.New("input canceled")

type scannedLine struct {
	err  error
	text string
}

// LineReader hands out terminal lines one at a time while honoring context
// cancellation. A single goroutine owns the source, so a read abandoned on
// cancel is delivered to the next ReadLine instead of being lost.
type LineReader struct {
	src   io.Reader
	lines chan scannedLine
	start sync.Once
}

// NewLineReader wraps src. It panics on a nil reader.
func NewLineReader(src io.Reader) *LineReader {
	if src == nil {
		panic("reader cannot be nil")
	}
	return &LineReader{src: src, lines: make(chan scannedLine)}
}

func (r *LineReader) pump() {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.src)
	for scanner.Scan() {
		r.lines <- scannedLine{text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	r.lines <- scannedLine{err: err}
}

// ReadLine returns the next line with surrounding whitespace removed. It
// returns io.EOF once the source is exhausted.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	r.start.Do(func() { go r.pump() })

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case line, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		if line.err != nil {
			return "", line.err
		}
		return strings.TrimSpace(line.text), nil
	}
}
