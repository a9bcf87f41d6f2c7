package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	limit := CompletionRateLimit("openai", 20)

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), limit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 20, remaining)

	assert.NoError(t, limiter.Wait(context.Background(), limit))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", 0))

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found, "cache miss expected when Redis disabled")
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestNilClientIsDisabled(t *testing.T) {
	var c *Client
	assert.False(t, c.Enabled())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "completion:openai:gpt-4:abc123", CompletionKey("openai", "gpt-4", "abc123"))

	limit := CompletionRateLimit("anthropic", 50)
	assert.Equal(t, "completion:anthropic", limit.Key)
	assert.Equal(t, 50, limit.Limit)
	assert.Equal(t, "1m0s", limit.Window.String())
}
