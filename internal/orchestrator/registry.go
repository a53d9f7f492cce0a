package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry errors.
var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrToolDisabled = errors.New("tool disabled")
)

// Handler runs a tool with decoded arguments.
type Handler func(ctx context.Context, args Arguments) Result

// Tool is one registered agent operation.
type Tool struct {
	RegisteredAt time.Time  `json:"registered_at"`
	LastCalled   *time.Time `json:"last_called"`
	Handler      Handler    `json:"-"`
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Action       Action     `json:"action"`
	CallCount    int        `json:"call_count"`
	Enabled      bool       `json:"enabled"`
}

// Statistics summarizes the registry.
type Statistics struct {
	ToolsByCategory map[string]int `json:"tools_by_category"`
	TotalTools      int            `json:"total_tools"`
	EnabledTools    int            `json:"enabled_tools"`
	DisabledTools   int            `json:"disabled_tools"`
	Categories      int            `json:"categories"`
}

// Registry holds the callable tools and their call statistics.
type Registry struct {
	tools map[string]*Tool
	now   func() time.Time
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
		now:   time.Now,
	}
}

// Register adds or replaces a tool. New tools start enabled.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	if tool.Action == "" {
		tool.Action = ActionRead
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tool.Enabled = true
	tool.RegisteredAt = r.now()
	tool.CallCount = 0
	tool.LastCalled = nil
	r.tools[tool.Name] = &tool

	slog.Debug("Registered tool", "name", tool.Name, "version", tool.Version, "category", tool.Category)
	return nil
}

// Get returns a copy of a tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// List returns copies of all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled enables or disables a tool.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	t.Enabled = enabled
	slog.Info("Tool availability changed", "name", name, "enabled", enabled)
	return nil
}

// Statistics counts tools by state and category.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Statistics{ToolsByCategory: make(map[string]int)}
	for _, t := range r.tools {
		stats.TotalTools++
		if t.Enabled {
			stats.EnabledTools++
		}
		stats.ToolsByCategory[t.Category]++
	}
	stats.DisabledTools = stats.TotalTools - stats.EnabledTools
	stats.Categories = len(stats.ToolsByCategory)
	return stats
}

// Call runs an enabled tool and records the call.
func (r *Registry) Call(ctx context.Context, name string, args Arguments) (Result, error) {
	r.mu.Lock()
	t, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if !t.Enabled {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	now := r.now()
	t.CallCount++
	t.LastCalled = &now
	handler := t.Handler
	r.mu.Unlock()

	return handler(ctx, args), nil
}
