package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/llm"
)

var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// LoadLLMConfig loads the analyzer configuration. When no provider is set the
// first provider with an API key in the environment is used.
func LoadLLMConfig() (*llm.Config, error) {
	config := llm.Config{
		Temperature: 0.1,
		MaxTokens:   1000,
		CacheTTL:    time.Hour,
		CacheSize:   256,
		RateLimit:   60,
		Timeout:     60 * time.Second,
	}

	config.Provider = strings.ToLower(viper.GetString("llm.provider"))
	if v := viper.GetString("llm.api_key"); v != "" {
		config.APIKey = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		config.Model = v
	}
	if v := viper.GetString("llm.base_url"); v != "" {
		config.BaseURL = v
	}
	if viper.IsSet("llm.temperature") {
		config.Temperature = viper.GetFloat64("llm.temperature")
	}
	if v := viper.GetInt("llm.max_tokens"); v > 0 {
		config.MaxTokens = v
	}
	if viper.IsSet("llm.cache_ttl") {
		config.CacheTTL = viper.GetDuration("llm.cache_ttl")
	}
	if viper.IsSet("llm.rate_limit") {
		config.RateLimit = viper.GetInt("llm.rate_limit")
	}
	if v := viper.GetDuration("llm.timeout"); v > 0 {
		config.Timeout = v
	}

	if config.Provider == "" {
		config.Provider = os.Getenv("LLM_PROVIDER")
	}
	if config.Provider == "" {
		for _, p := range llm.Providers {
			if os.Getenv(providerKeyEnv[p]) != "" {
				config.Provider = p
				break
			}
		}
	}
	if config.APIKey == "" {
		if env, ok := providerKeyEnv[strings.ToLower(config.Provider)]; ok {
			config.APIKey = os.Getenv(env)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
