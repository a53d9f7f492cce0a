package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/currency"
)

// LoadExchangeConfig loads the currency converter configuration. Without an API
// key the converter starts at the keyless source.
func LoadExchangeConfig() (*currency.Config, error) {
	config := currency.DefaultConfig()

	if v := viper.GetString("exchange.api_key"); v != "" {
		config.APIKey = v
	}
	if v := viper.GetString("exchange.primary_url"); v != "" {
		config.PrimaryBaseURL = v
	}
	if v := viper.GetString("exchange.keyless_url"); v != "" {
		config.KeylessBaseURL = v
	}
	if v := viper.GetString("exchange.secondary_url"); v != "" {
		config.SecondaryBaseURL = v
	}
	if v := viper.GetDuration("exchange.timeout"); v > 0 {
		config.Timeout = v
	}
	if v := viper.GetDuration("exchange.cache_ttl"); v > 0 {
		config.CacheTTL = v
	}
	if v := viper.GetInt("exchange.cache_size"); v > 0 {
		config.CacheSize = v
	}

	if config.APIKey == "" {
		config.APIKey = os.Getenv("EXCHANGE_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
