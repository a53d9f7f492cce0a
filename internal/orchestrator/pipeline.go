package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/mailbox"
	"github.com/Veraticus/finmail/internal/model"
)

// ExportFile is the name of the batch export written by one-shot processing.
const ExportFile = "financial_emails.json"

// search opens the account's mailbox and runs the query.
func (o *Orchestrator) search(ctx context.Context, account, query string, maxResults int) ([]model.Email, error) {
	box, err := o.deps.Mailbox.Open(ctx, account)
	if err != nil {
		return nil, err
	}
	if query == "" {
		query = mailbox.DefaultQuery
	}
	return box.Search(ctx, query, maxResults)
}

// extractAll runs the extraction pipeline over each message in order.
func (o *Orchestrator) extractAll(ctx context.Context, emails []model.Email) ([]model.FinancialRecord, error) {
	records := make([]model.FinancialRecord, 0, len(emails))
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		if rec, ok := o.extractOne(ctx, email); ok {
			records = append(records, rec)
		}
	}
	slog.Info("Extracted financial records", "messages", len(emails), "records", len(records))
	return records, nil
}

// extractOne applies the subject gate, then prefers a confident LLM result over the rules.
// A message the rules reject is dropped even when the LLM produced something.
func (o *Orchestrator) extractOne(ctx context.Context, email model.Email) (model.FinancialRecord, bool) {
	if !extract.IsFinancial(email.Subject) {
		return model.FinancialRecord{}, false
	}

	ex, ok := o.deps.Extractor.Extract(ctx, email.Subject, email.Body)
	if o.caps.HasLLM {
		analysis := o.deps.Analyzer.Analyze(ctx, email.Subject, email.Body, extract.DocumentTypeFor(email.Subject))
		ex, ok = o.deps.Analyzer.Policy().Choose(analysis, ex, ok)
	}
	if !ok {
		return model.FinancialRecord{}, false
	}
	return model.NewRecord(email, ex), true
}

// export writes the batch as indented JSON and returns the file path.
func (o *Orchestrator) export(records []model.FinancialRecord) (string, error) {
	if o.outputDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(o.outputDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	path := filepath.Join(o.outputDir, ExportFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
