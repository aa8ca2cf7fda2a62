package health

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const checkTimeout = 2 * time.Second

// Check is a dependency check run by the health endpoint.
type Check func(ctx context.Context) error

// PostgresChecker pings the connection pool.
func PostgresChecker(pool *pgxpool.Pool) Check {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}

// RedisChecker pings Redis.
func RedisChecker(client redis.Cmdable) Check {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// ConnectionChecker reports a dependency whose client tracks its own state,
// such as the NATS connection.
func ConnectionChecker(name string, connected func() bool) Check {
	return func(ctx context.Context) error {
		if !connected() {
			return errors.New(name + " is not connected")
		}
		return nil
	}
}
