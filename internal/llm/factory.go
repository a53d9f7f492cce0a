package llm

import (
	"fmt"
	"io"
	"strings"
)

// NewClient creates an LLM client for the configured provider.
// A positive RateLimit adds a token bucket and a positive CacheTTL adds a response cache in front of it.
func NewClient(cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	case "gemini":
		client, err = newGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	if cfg.RateLimit > 0 {
		client = newLimitedClient(client, cfg.RateLimit)
	}
	if cfg.CacheTTL > 0 {
		client = newCachedClient(client, cfg.CacheTTL, cfg.CacheSize)
	}
	return client, nil
}

// Close releases background resources held by decorated clients.
func Close(client Client) error {
	if c, ok := client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
