package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/llm"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"
	"github.com/Veraticus/finmail/internal/session"
)

const (
	defaultProcessMax  = 20
	defaultQueryLimit  = 10
	summarySearchMax   = 100
	summaryRecentLimit = 5
	summarySampleSize  = 3
)

// Result statuses.
const (
	StatusSuccess         = "success"
	StatusNoEmailsFound   = "no_emails_found"
	StatusNoEmails        = "no_emails"
	StatusNoData          = "no_data"
	SourceDatabase        = "database"
	SourceEmailSearch     = "email_search"
	interactiveNextStep   = "Confirm whether each record is correct, or send corrections"
	noFinancialEmailsText = "No financial emails found matching the criteria."
)

// ProcessResult is returned by ProcessEmails.
type ProcessResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	OutputFile string `json:"output_file,omitempty"`
	Count      int    `json:"count"`
	SavedCount int    `json:"saved_count"`
}

// ProcessEmails searches, extracts and persists in one pass, exporting the batch as JSON.
func (o *Orchestrator) ProcessEmails(ctx context.Context, maxResults int, account string) Result {
	if !o.caps.HasMailbox {
		return unavailable("Email processing")
	}
	if maxResults <= 0 {
		maxResults = defaultProcessMax
	}

	emails, err := o.search(ctx, account, "", maxResults)
	if err != nil {
		return failure("Failed to process emails", err)
	}
	records, err := o.extractAll(ctx, emails)
	if err != nil {
		return failure("Failed to process emails", err)
	}
	if len(records) == 0 {
		return success(ProcessResult{Status: StatusNoEmailsFound, Message: noFinancialEmailsText})
	}

	out := ProcessResult{Status: StatusSuccess, Count: len(records)}
	if out.OutputFile, err = o.export(records); err != nil {
		common.LogError(err, "Failed to export records", common.Fields{"count": len(records)})
	}
	if o.caps.HasDatabase {
		out.SavedCount = o.deps.Store.BatchUpsert(ctx, records)
	}
	out.Message = fmt.Sprintf("Processed %d emails, %d saved to database", out.Count, out.SavedCount)
	return success(out)
}

// InteractiveResult is returned by ProcessInteractive.
type InteractiveResult struct {
	Status       string               `json:"status"`
	Message      string               `json:"message"`
	NextStep     string               `json:"next_step,omitempty"`
	ReviewData   []session.ReviewItem `json:"review_data,omitempty"`
	SessionState session.Summary      `json:"session_state"`
	TotalEmails  int                  `json:"total_emails"`
}

// ProcessInteractive runs a processing pass into a review session. An empty session id starts a new session.
func (o *Orchestrator) ProcessInteractive(ctx context.Context, sessionID, account, query string) Result {
	if !o.caps.HasMailbox || !o.caps.HasSessions {
		return unavailable("Interactive email processing")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := o.deps.Sessions.BeginProcessing(ctx, sessionID, account); err != nil {
		return failure("Interactive email processing failed", err)
	}

	emails, err := o.search(ctx, account, query, 0)
	if err != nil {
		o.failSession(ctx, sessionID, err)
		if errors.Is(err, common.ErrMailboxAuth) {
			return failure("Mailbox authentication failed, check the account permissions", err)
		}
		return failure("Interactive email processing failed", err)
	}
	records, err := o.extractAll(ctx, emails)
	if err != nil {
		o.failSession(ctx, sessionID, err)
		return failure("Interactive email processing failed", err)
	}

	preview, err := o.deps.Sessions.StoreCandidates(ctx, sessionID, records)
	if err != nil {
		return failure("Interactive email processing failed", err)
	}
	summary, err := o.deps.Sessions.Summary(ctx, sessionID)
	if err != nil {
		return failure("Interactive email processing failed", err)
	}

	if len(records) == 0 {
		return success(InteractiveResult{
			Status:       StatusNoEmails,
			Message:      noFinancialEmailsText,
			SessionState: summary,
		})
	}
	return success(InteractiveResult{
		Status:       StatusSuccess,
		TotalEmails:  len(records),
		ReviewData:   preview,
		Message:      fmt.Sprintf("Found %d financial emails, please review the data below", len(records)),
		SessionState: summary,
		NextStep:     interactiveNextStep,
	})
}

func (o *Orchestrator) failSession(ctx context.Context, sessionID string, cause error) {
	if err := o.deps.Sessions.Fail(ctx, sessionID, cause.Error()); err != nil {
		common.LogError(err, "Failed to mark session as failed", common.Fields{"session_id": sessionID})
	}
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	Status               string          `json:"status"`
	EmailID              string          `json:"email_id"`
	SessionState         session.Summary `json:"session_state"`
	ModificationsApplied int             `json:"modifications_applied"`
	Confirmed            bool            `json:"confirmed"`
}

// Confirm records a reviewer decision and optional field corrections for one record.
func (o *Orchestrator) Confirm(ctx context.Context, sessionID, recordID string, confirmed bool, modifications map[string]any) Result {
	if !o.caps.HasSessions {
		return unavailable("Session management")
	}
	if recordID == "" {
		return failure("Confirmation failed", fmt.Errorf("email_id is required"))
	}

	res, err := o.deps.Sessions.Confirm(ctx, sessionID, recordID, confirmed, modifications)
	if err != nil {
		return failure("Confirmation failed", err)
	}
	summary, err := o.deps.Sessions.Summary(ctx, sessionID)
	if err != nil {
		return failure("Confirmation failed", err)
	}
	return success(ConfirmResult{
		Status:               StatusSuccess,
		EmailID:              res.SourceID,
		Confirmed:            res.Confirmed,
		ModificationsApplied: res.ModificationsApplied,
		SessionState:         summary,
	})
}

// SaveResult is returned by Save.
type SaveResult struct {
	SessionSummary *session.Summary `json:"session_summary,omitempty"`
	Status         string           `json:"status"`
	Message        string           `json:"message"`
	SavedCount     int              `json:"saved_count"`
	TotalConfirmed int              `json:"total_confirmed"`
}

// Save persists the confirmed records of a session with their modifications overlaid and completes it.
// Partial persistence failures are reported in the counts.
func (o *Orchestrator) Save(ctx context.Context, sessionID string) Result {
	if !o.caps.HasSessions || !o.caps.HasDatabase {
		return unavailable("Save functionality")
	}

	out, err := o.deps.Sessions.Save(ctx, sessionID, o.deps.Store.BatchUpsert)
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		return success(SaveResult{Status: StatusNoData, Message: "The session has no records awaiting review"})
	case err != nil:
		return failure("Save operation failed", err)
	case out.Confirmed == 0:
		return success(SaveResult{Status: StatusNoData, Message: "No confirmed records to save"})
	}

	common.LogInfo("Saved confirmed records", common.Fields{
		"session_id": sessionID,
		"saved":      out.Saved,
		"confirmed":  out.Confirmed,
	})
	return success(SaveResult{
		Status:         StatusSuccess,
		Message:        fmt.Sprintf("Saved %d of %d confirmed records", out.Saved, out.Confirmed),
		SavedCount:     out.Saved,
		TotalConfirmed: out.Confirmed,
		SessionSummary: &out.Summary,
	})
}

// EmailSummary is a summary recomputed from a fresh mailbox search.
type EmailSummary struct {
	ByType      map[model.DocumentType]int `json:"by_type"`
	ByStatus    map[model.Status]int       `json:"by_status"`
	Currencies  map[string]decimal.Decimal `json:"currencies"`
	TotalAmount decimal.Decimal            `json:"total_amount"`
	TotalEmails int                        `json:"total_emails"`
}

// SummaryResult is returned by Summarize. Summary is a *service.SummaryStats for the
// database source and an EmailSummary for the email_search source.
type SummaryResult struct {
	Summary      any                     `json:"summary,omitempty"`
	Status       string                  `json:"status"`
	Source       string                  `json:"source,omitempty"`
	RecentEmails []model.FinancialRecord `json:"recent_emails,omitempty"`
	SampleEmails []model.FinancialRecord `json:"sample_emails,omitempty"`
}

// Summarize aggregates stored records, or recomputes from the mailbox when no database is configured.
func (o *Orchestrator) Summarize(ctx context.Context, account string) Result {
	switch {
	case o.caps.HasDatabase:
		stats, err := o.deps.Store.Summary(ctx)
		if err != nil {
			return failure("Database query failed", err)
		}
		recent, err := o.deps.Store.List(ctx, service.RecordFilter{Limit: summaryRecentLimit})
		if err != nil {
			return failure("Database query failed", err)
		}
		return success(SummaryResult{
			Status:       StatusSuccess,
			Source:       SourceDatabase,
			Summary:      stats,
			RecentEmails: recent,
		})

	case o.caps.HasMailbox:
		emails, err := o.search(ctx, account, "", summarySearchMax)
		if err != nil {
			return failure("Failed to generate summary", err)
		}
		records, err := o.extractAll(ctx, emails)
		if err != nil {
			return failure("Failed to generate summary", err)
		}
		if len(records) == 0 {
			return success(SummaryResult{Status: StatusNoEmailsFound})
		}
		samples := records
		if len(samples) > summarySampleSize {
			samples = samples[:summarySampleSize]
		}
		return success(SummaryResult{
			Status:       StatusSuccess,
			Source:       SourceEmailSearch,
			Summary:      summarizeRecords(records),
			SampleEmails: samples,
		})

	default:
		return unavailable("Email processing")
	}
}

func summarizeRecords(records []model.FinancialRecord) EmailSummary {
	s := EmailSummary{
		TotalEmails: len(records),
		ByType:      make(map[model.DocumentType]int),
		ByStatus:    make(map[model.Status]int),
		Currencies:  make(map[string]decimal.Decimal),
	}
	for _, rec := range records {
		s.ByType[rec.Info.DocumentType]++
		s.ByStatus[rec.Info.Status]++
		if rec.Info.Amount != nil && !rec.Info.Amount.IsZero() && rec.Info.Currency != "" {
			s.TotalAmount = s.TotalAmount.Add(*rec.Info.Amount)
			s.Currencies[rec.Info.Currency] = s.Currencies[rec.Info.Currency].Add(*rec.Info.Amount)
		}
	}
	return s
}

// QueryResult is returned by Query.
type QueryResult struct {
	Status string                  `json:"status"`
	Emails []model.FinancialRecord `json:"emails"`
	Count  int                     `json:"count"`
}

// Query lists stored records, most recently processed first.
func (o *Orchestrator) Query(ctx context.Context, limit int, documentType, status string) Result {
	if !o.caps.HasDatabase {
		return unavailable("Database service")
	}

	filter := service.RecordFilter{Limit: limit}
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if documentType != "" {
		d, ok := model.ParseDocumentType(documentType)
		if !ok {
			return failure("Invalid query", fmt.Errorf("unknown document type %q", documentType))
		}
		filter.DocumentType = d
	}
	if status != "" {
		s, ok := model.ParseStatus(status)
		if !ok {
			return failure("Invalid query", fmt.Errorf("unknown status %q", status))
		}
		filter.Status = s
	}

	records, err := o.deps.Store.List(ctx, filter)
	if err != nil {
		return failure("Database query failed", err)
	}
	return success(QueryResult{Status: StatusSuccess, Count: len(records), Emails: records})
}

// SessionStatusResult is returned by SessionStatus.
type SessionStatusResult struct {
	Status         string          `json:"status"`
	SessionSummary session.Summary `json:"session_summary"`
}

// SessionStatus reports a session's state and counts.
func (o *Orchestrator) SessionStatus(ctx context.Context, sessionID string) Result {
	if !o.caps.HasSessions {
		return unavailable("Session management")
	}
	summary, err := o.deps.Sessions.Summary(ctx, sessionID)
	if err != nil {
		return failure("Failed to get session status", err)
	}
	return success(SessionStatusResult{Status: StatusSuccess, SessionSummary: summary})
}

// AnalysisMetadata carries the analyzer's free-form output.
type AnalysisMetadata struct {
	Description       string   `json:"description"`
	Anomalies         []string `json:"anomalies"`
	ExtractedEntities []string `json:"extracted_entities"`
}

// AnalysisResult is returned by AnalyzeEmail.
type AnalysisResult struct {
	Status           string               `json:"status"`
	AnalysisMethod   model.AnalysisMethod `json:"analysis_method"`
	Fallback         llm.FallbackDepth    `json:"fallback,omitempty"`
	FinancialInfo    model.FinancialInfo  `json:"financial_info"`
	AnalysisMetadata AnalysisMetadata     `json:"analysis_metadata"`
	Recommendations  []string             `json:"recommendations"`
	Confidence       float64              `json:"confidence"`
}

const noIssuesRecommendation = "Analysis looks normal, safe to continue"

// AnalyzeEmail runs the language model analysis on one email and suggests follow-ups.
// An unrecognized type hint is ignored.
func (o *Orchestrator) AnalyzeEmail(ctx context.Context, subject, body, hint string) Result {
	if !o.caps.HasLLM {
		return unavailable("LLM email analysis")
	}
	if subject == "" && body == "" {
		return failure("LLM email analysis failed", fmt.Errorf("subject or body is required"))
	}

	docHint, ok := model.ParseDocumentType(hint)
	if !ok {
		docHint = ""
	}

	analysis := o.deps.Analyzer.Analyze(ctx, subject, body, docHint)
	recommendations := llm.Recommendations(analysis.Extraction)
	if len(recommendations) == 0 {
		recommendations = []string{noIssuesRecommendation}
	}

	prov := analysis.Provenance
	return success(AnalysisResult{
		Status:         StatusSuccess,
		AnalysisMethod: prov.Method,
		Confidence:     prov.Confidence,
		Fallback:       analysis.FallbackDepth,
		FinancialInfo:  analysis.Info,
		AnalysisMetadata: AnalysisMetadata{
			Anomalies:         nonNil(prov.Anomalies),
			ExtractedEntities: nonNil(prov.ExtractedEntities),
			Description:       prov.Description,
		},
		Recommendations: recommendations,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ToolsResult is returned by ListTools.
type ToolsResult struct {
	Status       string       `json:"status"`
	Tools        []Tool       `json:"tools"`
	Statistics   Statistics   `json:"statistics"`
	Capabilities Capabilities `json:"capabilities"`
}

// ListTools describes the registered tools.
func (o *Orchestrator) ListTools() Result {
	return success(ToolsResult{
		Status:       StatusSuccess,
		Tools:        o.deps.Registry.List(),
		Statistics:   o.deps.Registry.Statistics(),
		Capabilities: o.caps,
	})
}

// SetToolEnabled enables or disables a registered tool. The admin tool itself cannot be disabled.
func (o *Orchestrator) SetToolEnabled(name string, enabled bool) Result {
	if name == ToolSetEnabled && !enabled {
		return failure("Failed to change tool", fmt.Errorf("%s cannot be disabled", ToolSetEnabled))
	}
	if err := o.deps.Registry.SetEnabled(name, enabled); err != nil {
		return failure("Failed to change tool", err)
	}
	return success(map[string]any{"status": StatusSuccess, "name": name, "enabled": enabled})
}
