package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// responseCache stores replies keyed by a hash of the prompt.
type responseCache struct {
	lru *expirable.LRU[string, string]
}

func newResponseCache(ttl time.Duration, size int) *responseCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	if size <= 0 {
		size = 512
	}
	return &responseCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (c *responseCache) get(prompt string) (string, bool) {
	return c.lru.Get(promptKey(prompt))
}

func (c *responseCache) set(prompt, reply string) {
	c.lru.Add(promptKey(prompt), reply)
}

func (c *responseCache) size() int {
	return c.lru.Len()
}

func (c *responseCache) clear() {
	c.lru.Purge()
}

// cachedClient answers repeated prompts from the cache. Errors are never cached.
type cachedClient struct {
	next  Client
	cache *responseCache
}

func newCachedClient(next Client, ttl time.Duration, size int) *cachedClient {
	return &cachedClient{next: next, cache: newResponseCache(ttl, size)}
}

func (c *cachedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if reply, ok := c.cache.get(prompt); ok {
		return reply, nil
	}
	reply, err := c.next.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.cache.set(prompt, reply)
	return reply, nil
}

// Close purges the cache and closes the wrapped client.
func (c *cachedClient) Close() error {
	c.cache.clear()
	return Close(c.next)
}
