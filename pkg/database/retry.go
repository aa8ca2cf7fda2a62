package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
)

// RetryConfig is the retry policy for database calls.
func RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
		RetryableChecker:  IsRetryable,
	}
}

// IsRetryable reports whether a database error is transient.
func IsRetryable(err error) bool {
	return isPostgresRetryable(err)
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"timeout",
	"too many connections",
	"server closed",
	"temporary failure",
}

func isPostgresRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"53000", // insufficient_resources
			"53300", // too_many_connections
			"53400", // configuration_limit_exceeded
			"57P01", // admin_shutdown
			"57P02", // crash_shutdown
			"57P03": // cannot_connect_now
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
