package orchestrator

import (
	"context"
)

// Tool names exposed to the hosting agent.
const (
	ToolProcessEmails      = "process_financial_emails"
	ToolSummary            = "get_financial_email_summary"
	ToolQuery              = "query_financial_emails"
	ToolProcessInteractive = "process_emails_interactive"
	ToolConfirm            = "confirm_email_data"
	ToolSave               = "save_confirmed_data"
	ToolSessionStatus      = "get_session_status"
	ToolAnalyze            = "analyze_email_with_llm"
	ToolListTools          = "list_tools"
	ToolSetEnabled         = "set_tool_enabled"
)

const (
	categoryEmail   = "email"
	categorySession = "session"
	categoryAdmin   = "admin"
)

func (o *Orchestrator) registerTools() error {
	tools := []struct {
		enabled bool
		tool    Tool
	}{
		{o.caps.HasMailbox, Tool{
			Name: ToolProcessEmails, Category: categoryEmail, Action: ActionProcess,
			Description: "Search the mailbox for financial emails, extract them and save them",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.ProcessEmails(ctx, a.Int("max_results", defaultProcessMax), a.String("email_account"))
			},
		}},
		{o.caps.HasMailbox || o.caps.HasDatabase, Tool{
			Name: ToolSummary, Category: categoryEmail, Action: ActionRead,
			Description: "Summarize financial emails by type, status and currency",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.Summarize(ctx, a.String("email_account"))
			},
		}},
		{o.caps.HasDatabase, Tool{
			Name: ToolQuery, Category: categoryEmail, Action: ActionRead,
			Description: "List saved financial records, optionally filtered by document type and status",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.Query(ctx, a.Int("limit", defaultQueryLimit), a.String("document_type"), a.String("status"))
			},
		}},
		{o.caps.HasMailbox && o.caps.HasSessions, Tool{
			Name: ToolProcessInteractive, Category: categorySession, Action: ActionProcess,
			Description: "Search and extract financial emails into a review session",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.ProcessInteractive(ctx, a.String("session_id"), a.String("email_account"), a.String("query"))
			},
		}},
		{o.caps.HasSessions, Tool{
			Name: ToolConfirm, Category: categorySession, Action: ActionProcess,
			Description: "Confirm or reject one record of a review session, optionally correcting fields",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.Confirm(ctx, a.String("session_id"), a.String("email_id"), a.Bool("confirmed", true), a.Map("modifications"))
			},
		}},
		{o.caps.HasSessions && o.caps.HasDatabase, Tool{
			Name: ToolSave, Category: categorySession, Action: ActionProcess,
			Description: "Save the confirmed records of a review session",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.Save(ctx, a.String("session_id"))
			},
		}},
		{o.caps.HasSessions, Tool{
			Name: ToolSessionStatus, Category: categorySession, Action: ActionRead,
			Description: "Report the state of a review session",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.SessionStatus(ctx, a.String("session_id"))
			},
		}},
		{o.caps.HasLLM, Tool{
			Name: ToolAnalyze, Category: categoryEmail, Action: ActionProcess,
			Description: "Analyze a single email with the language model and suggest follow-ups",
			Handler: func(ctx context.Context, a Arguments) Result {
				return o.AnalyzeEmail(ctx, a.String("subject"), a.String("body"), a.String("email_type"))
			},
		}},
		{true, Tool{
			Name: ToolListTools, Category: categoryAdmin, Action: ActionRead,
			Description: "List the registered tools and their call statistics",
			Handler: func(_ context.Context, _ Arguments) Result {
				return o.ListTools()
			},
		}},
		{true, Tool{
			Name: ToolSetEnabled, Category: categoryAdmin, Action: ActionAdmin,
			Description: "Enable or disable a tool",
			Handler: func(_ context.Context, a Arguments) Result {
				return o.SetToolEnabled(a.String("name"), a.Bool("enabled", true))
			},
		}},
	}

	for _, t := range tools {
		if !t.enabled {
			continue
		}
		t.tool.Version = o.version
		if err := o.deps.Registry.Register(t.tool); err != nil {
			return err
		}
	}
	return nil
}
