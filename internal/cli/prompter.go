package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/session"
	"github.com/schollz/progressbar/v3"
)

// ErrInputTerminated is returned when the input stream ends mid-review.
var ErrInputTerminated = errors.New("input terminated")

// Decision is the reviewer's verdict on one record.
type Decision struct {
	Modifications map[string]any
	SourceID      string
	Confirmed     bool
	Skipped       bool
}

// ReviewStats counts reviewer decisions for the completion box.
type ReviewStats struct {
	Duration  time.Duration
	Total     int
	Confirmed int
	Rejected  int
	Modified  int
	Skipped   int
}

// Prompter walks a reviewer through extracted records on a terminal.
type Prompter struct {
	startTime   time.Time
	writer      io.Writer
	reader      *LineReader
	progressBar *progressbar.ProgressBar
	stats       ReviewStats
	statsMutex  sync.RWMutex
}

// NewPrompter creates a review prompter with the given reader and writer.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader:    NewLineReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// Review prompts for every item in order and returns one decision per item.
func (p *Prompter) Review(ctx context.Context, items []session.ReviewItem) ([]Decision, error) {
	p.statsMutex.Lock()
	p.stats.Total = len(items)
	p.statsMutex.Unlock()
	p.initProgressBar(len(items))

	decisions := make([]Decision, 0, len(items))
	for i, item := range items {
		decision, err := p.ReviewItem(ctx, item, i+1, len(items))
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, decision)
		p.updateProgress()
	}
	return decisions, nil
}

// ReviewItem prompts for a single record.
func (p *Prompter) ReviewItem(ctx context.Context, item session.ReviewItem, index, total int) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	default:
	}

	title := fmt.Sprintf("%s Record %d of %d", MailIcon, index, total)
	if _, err := fmt.Fprintln(p.writer, RenderBox(title, FormatReviewItem(item))); err != nil {
		return Decision{}, fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, "[C]onfirm  [R]eject  [M]odify  [S]kip"); err != nil {
		return Decision{}, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice", []string{"c", "r", "m", "s"})
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{SourceID: item.SourceID}
	switch choice {
	case "c":
		decision.Confirmed = true
		p.incrementStats(func(s *ReviewStats) { s.Confirmed++ })
	case "r":
		p.incrementStats(func(s *ReviewStats) { s.Rejected++ })
	case "m":
		mods, err := p.promptModifications(ctx)
		if err != nil {
			return Decision{}, err
		}
		decision.Confirmed = true
		decision.Modifications = mods
		p.incrementStats(func(s *ReviewStats) {
			s.Confirmed++
			if len(mods) > 0 {
				s.Modified++
			}
		})
	case "s":
		decision.Skipped = true
		p.incrementStats(func(s *ReviewStats) { s.Skipped++ })
	}
	return decision, nil
}

// FormatReviewItem renders the fields of a review item, one per line.
func FormatReviewItem(item session.ReviewItem) string {
	lines := []string{
		FormatField("Subject", item.Subject),
		FormatField("From", item.From),
		FormatField("Date", item.Date),
		FormatField("Type", string(item.DocumentType)),
		FormatField("Status", string(item.Status)),
		FormatField("Counterparty", item.Counterparty),
		FormatField("Amount", formatAmount(item.Amount, item.Currency)),
	}
	if item.USDAmount != nil && item.Currency != "USD" {
		lines = append(lines, FormatField("USD", formatAmount(item.USDAmount, "USD")))
	}
	lines = append(lines, SubtleStyle.Render("id "+item.SourceID))
	return strings.Join(lines, "\n")
}

func formatAmount(amount *string, currency string) string {
	if amount == nil {
		return ""
	}
	if currency == "" {
		return *amount
	}
	return *amount + " " + currency
}

// Stats returns the decision counts so far.
func (p *Prompter) Stats() ReviewStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	stats := p.stats
	stats.Duration = time.Since(p.startTime)
	return stats
}

// ShowCompletion displays the review summary and the save outcome.
func (p *Prompter) ShowCompletion(savedCount int) {
	if p.progressBar != nil {
		if err := p.progressBar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}

	stats := p.Stats()
	summary := fmt.Sprintf("%s Statistics:\n", ChartIcon) +
		fmt.Sprintf("  • Reviewed: %d\n", stats.Total) +
		fmt.Sprintf("  • Confirmed: %d (%d modified)\n", stats.Confirmed, stats.Modified) +
		fmt.Sprintf("  • Rejected: %d\n", stats.Rejected) +
		fmt.Sprintf("  • Skipped: %d\n", stats.Skipped) +
		fmt.Sprintf("  • Saved: %d\n", savedCount) +
		fmt.Sprintf("  • Time taken: %s\n", stats.Duration.Round(time.Second))

	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Complete", summary)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
}

func (p *Prompter) initProgressBar(total int) {
	if total == 0 {
		return
	}
	p.progressBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing records...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (p *Prompter) updateProgress() {
	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func (p *Prompter) incrementStats(fn func(*ReviewStats)) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	fn(&p.stats)
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	line, err := p.reader.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrInputTerminated
		}
		return "", err
	}
	return line, nil
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprintf(p.writer, "%s: ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.readLine(ctx)
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

// promptModifications reads field=value lines until a blank line.
func (p *Prompter) promptModifications(ctx context.Context) (map[string]any, error) {
	hint := fmt.Sprintf("Enter field=value, blank line to finish. Fields: %s", strings.Join(model.FieldNames, ", "))
	if _, err := fmt.Fprintln(p.writer, FormatInfo(hint)); err != nil {
		return nil, fmt.Errorf("failed to write modification hint: %w", err)
	}

	mods := make(map[string]any)
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt("Modify")); err != nil {
			return nil, fmt.Errorf("failed to write modification prompt: %w", err)
		}

		line, err := p.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return mods, nil
		}

		field, value, err := ParseModification(line)
		if err != nil {
			if _, werr := fmt.Fprintln(p.writer, FormatError(err.Error())); werr != nil {
				slog.Warn("Failed to write modification error", "error", werr)
			}
			continue
		}
		mods[field] = value
	}
}

// ParseModification splits a "field=value" line and checks the field name.
func ParseModification(line string) (string, any, error) {
	field, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", nil, fmt.Errorf("expected field=value, got %q", line)
	}
	field = strings.ToLower(strings.TrimSpace(field))
	if !model.HasField(field) {
		return "", nil, fmt.Errorf("unknown field %q", field)
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return field, nil, nil
	}
	return field, value, nil
}
