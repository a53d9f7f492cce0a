package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"openai", Config{Provider: "openai", APIKey: "k"}, false},
		{"anthropic mixed case", Config{Provider: "Anthropic", APIKey: "k"}, false},
		{"gemini", Config{Provider: "gemini", APIKey: "k"}, false},
		{"missing key", Config{Provider: "anthropic"}, true},
		{"unknown provider", Config{Provider: "bedrock", APIKey: "k"}, true},
		{"decorated", Config{Provider: "openai", APIKey: "k", RateLimit: 10, CacheTTL: time.Minute}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
			assert.NoError(t, Close(client))
		})
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, systemPrompt, body["system"])

		if body["model"] == "broken" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"amount\": 1}"}]}`))
	}))
	defer server.Close()

	client, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"amount": 1}`, reply)

	broken, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "broken"})
	require.NoError(t, err)
	_, err = broken.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"currency\":\"USD\"}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := newOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"currency":"USD"}`, reply)
}

type countingClient struct {
	calls atomic.Int32
}

func (c *countingClient) Complete(_ context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	return "reply to " + prompt, nil
}

func TestCachedClient(t *testing.T) {
	inner := &countingClient{}
	client := newCachedClient(inner, time.Minute, 8)
	defer func() { _ = client.Close() }()

	for i := 0; i < 3; i++ {
		reply, err := client.Complete(context.Background(), "same")
		require.NoError(t, err)
		assert.Equal(t, "reply to same", reply)
	}
	_, err := client.Complete(context.Background(), "other")
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Equal(t, 2, client.cache.size())
}

func TestCachedClient_Expiry(t *testing.T) {
	inner := &countingClient{}
	client := newCachedClient(inner, 50*time.Millisecond, 8)

	_, _ = client.Complete(context.Background(), "p")
	time.Sleep(120 * time.Millisecond)
	_, _ = client.Complete(context.Background(), "p")

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst then wait", func(t *testing.T) {
		rl := newRateLimiter(60)

		for i := 0; i < 60; i++ {
			require.True(t, rl.tryAcquire())
		}
		assert.False(t, rl.tryAcquire())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, rl.wait(ctx))
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := newRateLimiter(1)

		require.NoError(t, rl.wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := rl.wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("refills from the clock", func(t *testing.T) {
		rl := newRateLimiter(2)
		start := rl.last
		rl.now = func() time.Time { return start }

		require.True(t, rl.tryAcquire())
		require.True(t, rl.tryAcquire())
		delay, ok := rl.take()
		assert.False(t, ok)
		assert.Equal(t, 30*time.Second, delay)

		rl.now = func() time.Time { return start.Add(30 * time.Second) }
		assert.True(t, rl.tryAcquire())
		assert.False(t, rl.tryAcquire())
	})

	t.Run("limited client", func(t *testing.T) {
		inner := &countingClient{}
		client := newLimitedClient(inner, 1)
		defer func() { _ = client.Close() }()

		_, err := client.Complete(context.Background(), "a")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		_, err = client.Complete(ctx, "b")
		assert.Error(t, err)
		assert.EqualValues(t, 1, inner.calls.Load())
	})
}
