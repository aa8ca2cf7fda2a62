package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/giftcard-ledger/pkg/config"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
	"go.uber.org/zap"
)

// NewPostgresPool creates a new PostgreSQL connection pool. Transient
// connection failures at start-up are retried.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)

	result, err := resilience.Retry(ctx, RetryConfig(), func(ctx context.Context) (interface{}, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			logger.Warn("database not reachable yet", zap.String("host", cfg.Host), zap.Error(err))
			return nil, fmt.Errorf("unable to ping database: %w", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*pgxpool.Pool), nil
}

// Close closes the database connection pool
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
