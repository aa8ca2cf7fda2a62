package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"go.uber.org/zap"
)

// DefaultCacheKey is the Redis key holding the last fetched rate.
const DefaultCacheKey = "giftcards:oracle:rate"

// CachedOracle keeps the latest reading of another oracle in Redis for a
// short TTL. Cache failures are logged and the source is read directly.
type CachedOracle struct {
	next   PriceOracle
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewCachedOracle wraps next with a Redis cache.
func NewCachedOracle(next PriceOracle, client redis.Cmdable, key string, ttl time.Duration) *CachedOracle {
	if key == "" {
		key = DefaultCacheKey
	}
	return &CachedOracle{next: next, client: client, key: key, ttl: ttl}
}

// LatestRate serves the cached rate when present, otherwise reads and caches.
func (o *CachedOracle) LatestRate(ctx context.Context) (Rate, error) {
	data, err := o.client.Get(ctx, o.key).Result()
	switch {
	case err == nil:
		var rate Rate
		if jsonErr := json.Unmarshal([]byte(data), &rate); jsonErr == nil && rate.Answer > 0 {
			recordCache(resultHit)
			return rate, nil
		}
		logger.WithContext(ctx).Warn("discarding unreadable cached rate", zap.String("key", o.key))
	case errors.Is(err, redis.Nil):
	default:
		logger.WithContext(ctx).Warn("rate cache read failed", zap.String("key", o.key), zap.Error(err))
	}
	recordCache(resultMiss)

	rate, err := o.next.LatestRate(ctx)
	if err != nil {
		return Rate{}, err
	}

	encoded, err := json.Marshal(rate)
	if err != nil {
		return rate, nil
	}
	if err := o.client.Set(ctx, o.key, string(encoded), o.ttl).Err(); err != nil {
		logger.WithContext(ctx).Warn("rate cache write failed", zap.String("key", o.key), zap.Error(err))
	}
	return rate, nil
}
