package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled lazily from the clock on each take.
type rateLimiter struct {
	now      func() time.Time
	last     time.Time
	perToken time.Duration
	tokens   float64
	capacity float64
	mu       sync.Mutex
}

// newRateLimiter allows a burst of requestsPerMinute and refills at the same rate.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		now:      time.Now,
		last:     time.Now(),
		perToken: time.Minute / time.Duration(requestsPerMinute),
		tokens:   float64(requestsPerMinute),
		capacity: float64(requestsPerMinute),
	}
}

// take consumes a token, or reports how long until one is available.
func (rl *rateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens = min(rl.capacity, rl.tokens+float64(now.Sub(rl.last))/float64(rl.perToken))
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	return time.Duration((1 - rl.tokens) * float64(rl.perToken)), false
}

func (rl *rateLimiter) tryAcquire() bool {
	_, ok := rl.take()
	return ok
}

// wait blocks until a token is available or ctx ends.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rate limiter canceled: %w", err)
		}
		delay, ok := rl.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// limitedClient waits for a token before every call.
type limitedClient struct {
	next    Client
	limiter *rateLimiter
}

func newLimitedClient(next Client, requestsPerMinute int) *limitedClient {
	return &limitedClient{next: next, limiter: newRateLimiter(requestsPerMinute)}
}

func (c *limitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}
	return c.next.Complete(ctx, prompt)
}

// Close releases the wrapped client.
func (c *limitedClient) Close() error {
	return Close(c.next)
}
