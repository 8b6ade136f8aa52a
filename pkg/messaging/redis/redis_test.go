package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestPublishOpensBreakerAfterThreshold(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	b := NewWithClient(client, Config{BreakerThreshold: 2, BreakerTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	require.Error(t, b.Publish(ctx, "visits", map[string]string{"a": "b"}))
	require.Error(t, b.Publish(ctx, "visits", map[string]string{"a": "b"}))

	err := b.Publish(ctx, "visits", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorContains(t, err, "redis broker unavailable")
}

func TestPublishRejectsUnmarshalable(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	b := NewWithClient(client, Config{}, zerolog.Nop())
	err := b.Publish(context.Background(), "visits", make(chan int))
	assert.ErrorContains(t, err, "failed to marshal message")
}

func TestNewRedisBrokerBadURL(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "::not a url"}, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}
