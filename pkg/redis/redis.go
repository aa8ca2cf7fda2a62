package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/giftcard-ledger/pkg/config"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// NewRedisClient creates a Redis client and waits until the server answers
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(NewOptions(cfg))

	retry := resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
	_, err := resilience.Retry(ctx, retry, func(ctx context.Context) (interface{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return nil, client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// NewOptions maps configuration onto go-redis options
func NewOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Close closes the Redis client
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
