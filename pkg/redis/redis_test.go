package redis

import (
	"testing"

	"github.com/richxcame/giftcard-ledger/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestNewOptions(t *testing.T) {
	opts := NewOptions(&config.RedisConfig{
		Host:     "redis.internal",
		Port:     "6380",
		Password: "secret",
		DB:       2,
	})

	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

func TestClient_CloseNil(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
}
