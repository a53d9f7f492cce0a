package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// InterruptHandler turns SIGINT and SIGTERM into context cancellation and
// tells the reviewer how to pick the session back up.
type InterruptHandler struct {
	writer      io.Writer
	once        sync.Once
	interrupted atomic.Bool
	sessionMu   sync.Mutex
	sessionID   string
}

func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{writer: writer}
}

// SetResumeSession records the session the interrupt notice points back to.
func (h *InterruptHandler) SetResumeSession(id string) {
	h.sessionMu.Lock()
	h.sessionID = id
	h.sessionMu.Unlock()
}

// Watch returns a child of ctx that is canceled by the first interrupt signal.
func (h *InterruptHandler) Watch(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-ctx.Done():
		case <-signals:
			h.trip()
			cancel()
		}
	}()

	return ctx
}

func (h *InterruptHandler) trip() {
	h.once.Do(func() {
		h.interrupted.Store(true)
		if _, err := io.WriteString(h.writer, h.notice()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
		}
	})
}

func (h *InterruptHandler) notice() string {
	h.sessionMu.Lock()
	id := h.sessionID
	h.sessionMu.Unlock()

	msg := "\n\n" + FormatWarning("Review interrupted!") + "\n"
	if id != "" {
		msg += FormatInfo("Confirmed records stay in the session. Resume with: finmail review --session "+id) + "\n"
	}
	return msg
}

// WasInterrupted reports whether a signal canceled the watched context.
func (h *InterruptHandler) WasInterrupted() bool {
	return h.interrupted.Load()
}
