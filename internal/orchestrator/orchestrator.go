// Package orchestrator exposes the financial email pipeline as agent tools: one-shot processing,
// interactive review sessions, saving, summaries and single-email analysis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/service"
)

// DefaultUserID is used for invocations that do not name a caller.
const DefaultUserID = "default_user"

// Deps are the collaborators an Orchestrator works with. Nil collaborators disable
// the tools that need them.
type Deps struct {
	Mailbox     service.MailboxOpener
	Store       service.RecordStore
	Extractor   Extractor
	Analyzer    Analyzer
	Sessions    Sessions
	Registry    *Registry
	Permissions *Permissions
}

// Capabilities describes which optional features are wired in.
type Capabilities struct {
	HasMailbox  bool `json:"email_processor"`
	HasDatabase bool `json:"database_service"`
	HasLLM      bool `json:"llm_analyzer"`
	HasSessions bool `json:"session_manager"`
}

// Capabilities derives the descriptor from which collaborators are present.
func (d Deps) Capabilities() Capabilities {
	return Capabilities{
		HasMailbox:  d.Mailbox != nil && d.Extractor != nil,
		HasDatabase: d.Store != nil,
		HasLLM:      d.Analyzer != nil,
		HasSessions: d.Sessions != nil,
	}
}

func (c Capabilities) validate(d Deps) error {
	switch {
	case c.HasMailbox && (d.Mailbox == nil || d.Extractor == nil):
		return fmt.Errorf("%w: mailbox capability needs a mailbox and an extractor", common.ErrInvalidConfig)
	case c.HasDatabase && d.Store == nil:
		return fmt.Errorf("%w: database capability needs a record store", common.ErrInvalidConfig)
	case c.HasLLM && d.Analyzer == nil:
		return fmt.Errorf("%w: llm capability needs an analyzer", common.ErrInvalidConfig)
	case c.HasSessions && d.Sessions == nil:
		return fmt.Errorf("%w: session capability needs a session manager", common.ErrInvalidConfig)
	}
	return nil
}

// Orchestrator runs the agent tools.
type Orchestrator struct {
	deps      Deps
	caps      Capabilities
	outputDir string
	version   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOutputDir sets where one-shot processing exports its JSON batch. Empty disables the export.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithVersion sets the version reported for registered tools.
func WithVersion(version string) Option {
	return func(o *Orchestrator) { o.version = version }
}

// New creates an orchestrator and registers the tools its capabilities allow.
func New(deps Deps, caps Capabilities, opts ...Option) (*Orchestrator, error) {
	if err := caps.validate(deps); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Permissions == nil {
		deps.Permissions = NewPermissions()
	}

	o := &Orchestrator{
		deps:      deps,
		caps:      caps,
		outputDir: "output",
		version:   "1.0.0",
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.registerTools(); err != nil {
		return nil, err
	}

	slog.Info("Orchestrator ready",
		"mailbox", caps.HasMailbox,
		"database", caps.HasDatabase,
		"llm", caps.HasLLM,
		"sessions", caps.HasSessions)
	return o, nil
}

// Capabilities returns the capability descriptor.
func (o *Orchestrator) Capabilities() Capabilities {
	return o.caps
}

// Registry returns the tool registry.
func (o *Orchestrator) Registry() *Registry {
	return o.deps.Registry
}

// Store returns the record store, or nil.
func (o *Orchestrator) Store() service.RecordStore {
	return o.deps.Store
}

// Invocation is one tool call from the hosting agent.
type Invocation struct {
	Arguments Arguments `json:"arguments"`
	Tool      string    `json:"tool"`
	UserID    string    `json:"user_id"`
}

// Invoke checks permissions and runs a registered tool. Panics are recovered into error results.
func (o *Orchestrator) Invoke(ctx context.Context, inv Invocation) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", inv.Tool, "panic", r, "stack", string(debug.Stack()))
			result = Result{
				Error: fmt.Sprintf("Tool %s failed unexpectedly", inv.Tool),
				Err:   fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if inv.UserID == "" {
		inv.UserID = DefaultUserID
	}
	if inv.Arguments == nil {
		inv.Arguments = Arguments{}
	}

	tool, ok := o.deps.Registry.Get(inv.Tool)
	if !ok {
		return Result{Error: fmt.Sprintf("Unknown tool: %s", inv.Tool), Err: fmt.Errorf("%w: %s", ErrUnknownTool, inv.Tool)}
	}

	action := tool.Action
	if inv.Tool == ToolConfirm && len(inv.Arguments.Map("modifications")) > 0 {
		action = ActionModify
	}
	if err := o.deps.Permissions.Check(inv.UserID, action); err != nil {
		return Result{Error: fmt.Sprintf("Permission denied for %s", inv.Tool), Err: err}
	}

	common.LogDebug("Invoking tool", common.Fields{"tool": inv.Tool, "user_id": inv.UserID})
	result, err := o.deps.Registry.Call(ctx, inv.Tool, inv.Arguments)
	if err != nil {
		msg := "Tool call failed"
		if errors.Is(err, ErrToolDisabled) {
			msg = fmt.Sprintf("Tool %s is disabled", inv.Tool)
		}
		return Result{Error: msg, Err: err}
	}
	return result
}
