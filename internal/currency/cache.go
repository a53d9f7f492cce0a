package currency

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finmail_rate_cache_hits_total",
		Help: "Exchange rate cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finmail_rate_cache_misses_total",
		Help: "Exchange rate cache misses.",
	})
	sourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finmail_rate_source_requests_total",
		Help: "Exchange rate lookups per source and outcome.",
	}, []string{"source", "outcome"})
)

// rateCache is a bounded TTL cache keyed by FROM_TO.
type rateCache struct {
	lru *expirable.LRU[string, decimal.Decimal]
}

func newRateCache(size int, ttl time.Duration) *rateCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &rateCache{lru: expirable.NewLRU[string, decimal.Decimal](size, nil, ttl)}
}

func (c *rateCache) get(key string) (decimal.Decimal, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return v, true
	}
	cacheMissesTotal.Inc()
	return decimal.Zero, false
}

func (c *rateCache) set(key string, rate decimal.Decimal) {
	c.lru.Add(key, rate)
}

func (c *rateCache) size() int {
	return c.lru.Len()
}
