package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finmail/internal/common"
)

// Client sends a prompt to a language model and returns its text reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for LLM clients.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	CacheTTL    time.Duration
	CacheSize   int
	RateLimit   int
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

const systemPrompt = "You are a financial email analyst. Respond only with a JSON object in the exact format requested."

// Providers lists the supported provider names.
var Providers = []string{"openai", "anthropic", "gemini"}

// Validate checks that the configuration can build a client.
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "openai", "anthropic", "gemini":
	case "":
		return fmt.Errorf("%w: llm provider", common.ErrMissingConfig)
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", common.ErrInvalidConfig, c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s api key", common.ErrMissingConfig, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", common.ErrInvalidConfig)
	}
	if c.MaxTokens < 0 || c.RateLimit < 0 || c.CacheSize < 0 {
		return fmt.Errorf("%w: limits cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}
