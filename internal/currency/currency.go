// Package currency resolves exchange rates through a tiered set of sources with a short-lived cache.
package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned by the converter.
var (
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrInvalidCurrency = errors.New("invalid currency code")
)

// USD is the reporting currency.
const USD = "USD"

// Source is a single provider of exchange rates.
type Source interface {
	Name() string
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Rater is what extractors need from a converter.
type Rater interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Config configures the default converter.
type Config struct {
	APIKey           string
	PrimaryBaseURL   string
	KeylessBaseURL   string
	SecondaryBaseURL string
	Timeout          time.Duration
	CacheTTL         time.Duration
	CacheSize        int
}

// DefaultConfig returns the production endpoints and limits.
func DefaultConfig() Config {
	return Config{
		PrimaryBaseURL:   "https://v6.exchangerate-api.com/v6",
		KeylessBaseURL:   "https://open.er-api.com/v6",
		SecondaryBaseURL: "https://api.frankfurter.app",
		Timeout:          10 * time.Second,
		CacheTTL:         time.Hour,
		CacheSize:        1024,
	}
}

// Validate rejects negative limits. Empty endpoints fall back to the defaults.
func (c Config) Validate() error {
	if c.Timeout < 0 || c.CacheTTL < 0 || c.CacheSize < 0 {
		return fmt.Errorf("exchange config: timeout, cache ttl and cache size cannot be negative")
	}
	return nil
}

// Converter looks rates up in the cache, then in each source in order.
type Converter struct {
	cache   *rateCache
	logger  *slog.Logger
	sources []Source
}

// NewConverter creates a converter over explicit sources.
func NewConverter(sources []Source, ttl time.Duration, size int, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		cache:   newRateCache(size, ttl),
		sources: sources,
		logger:  logger,
	}
}

// NewDefaultConverter wires the live primary source, the live secondary source and the static table.
func NewDefaultConverter(cfg Config, logger *slog.Logger) *Converter {
	def := DefaultConfig()
	if cfg.PrimaryBaseURL == "" {
		cfg.PrimaryBaseURL = def.PrimaryBaseURL
	}
	if cfg.KeylessBaseURL == "" {
		cfg.KeylessBaseURL = def.KeylessBaseURL
	}
	if cfg.SecondaryBaseURL == "" {
		cfg.SecondaryBaseURL = def.SecondaryBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	return NewConverter([]Source{
		NewExchangeRateAPI(httpClient, cfg.APIKey, cfg.PrimaryBaseURL, cfg.KeylessBaseURL),
		NewFrankfurter(httpClient, cfg.SecondaryBaseURL),
		NewStaticSource(),
	}, cfg.CacheTTL, cfg.CacheSize, logger)
}

// Rate returns the rate to multiply an amount in from by to obtain an amount in to.
// Codes are trimmed and upper-cased first. A code that is empty after that yields
// ErrInvalidCurrency, even when both are empty, so Rate("", "") is an error rather
// than 1. Otherwise equal codes return 1 without consulting any source.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = normalizeCode(from)
	to = normalizeCode(to)
	if from == "" || to == "" {
		return decimal.Zero, ErrInvalidCurrency
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	key := from + "_" + to
	if rate, ok := c.cache.get(key); ok {
		return rate, nil
	}

	for _, src := range c.sources {
		rate, err := src.Rate(ctx, from, to)
		if err != nil {
			sourceRequests.WithLabelValues(src.Name(), "error").Inc()
			c.logger.Debug("Exchange rate source failed",
				"source", src.Name(),
				"from", from,
				"to", to,
				"error", err)
			continue
		}
		if !rate.IsPositive() {
			sourceRequests.WithLabelValues(src.Name(), "invalid").Inc()
			continue
		}
		sourceRequests.WithLabelValues(src.Name(), "ok").Inc()
		c.cache.set(key, rate)
		return rate, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrRateUnavailable, from, to)
}

// Convert multiplies amount by the rate from one currency to another.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Health reports "operational" when the identity conversion works.
func (c *Converter) Health(ctx context.Context) string {
	rate, err := c.Rate(ctx, USD, USD)
	if err != nil || !rate.Equal(decimal.NewFromInt(1)) {
		return "degraded"
	}
	return "operational"
}

// Normalize derives the USD amount and exchange rate for an extracted amount.
// A failed lookup leaves both nil so the record is stored unconverted.
func Normalize(ctx context.Context, rater Rater, amount *decimal.Decimal, currency string) (usd, rate *decimal.Decimal) {
	if amount == nil {
		return nil, nil
	}
	code := normalizeCode(currency)
	if code == "" {
		return nil, nil
	}
	if code == USD {
		one := decimal.NewFromInt(1)
		a := *amount
		return &a, &one
	}
	if rater == nil {
		return nil, nil
	}
	r, err := rater.Rate(ctx, code, USD)
	if err != nil {
		return nil, nil
	}
	u := amount.Mul(r)
	return &u, &r
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
