package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPostgresRetryable_Codes(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"40001", true},  // serialization_failure
		{"40P01", true},  // deadlock_detected
		{"55P03", true},  // lock_not_available
		{"53000", true},  // insufficient_resources
		{"53300", true},  // too_many_connections
		{"57P01", true},  // admin_shutdown
		{"08006", true},  // connection_failure
		{"53100", false}, // disk_full
		{"53200", false}, // out_of_memory
		{"23505", false}, // unique_violation
		{"22003", false}, // numeric_value_out_of_range
		{"42601", false}, // syntax_error
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, isPostgresRetryable(&pgconn.PgError{Code: tt.code}))
		})
	}
}

func TestIsPostgresRetryable_WrappedPgError(t *testing.T) {
	err := fmt.Errorf("append event: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsRetryable(err))
}

func TestIsPostgresRetryable_Messages(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"dial tcp: connection refused", true},
		{"Connection Reset by peer", true},
		{"BROKEN PIPE", true},
		{"lookup db: no such host", true},
		{"i/o timeout", true},
		{"FATAL: too many connections for role", true},
		{"server closed the connection unexpectedly", true},
		{"temporary failure in name resolution", true},
		{"some unknown error", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isPostgresRetryable(errors.New(tt.msg)))
		})
	}
}

func TestIsPostgresRetryable_NonRetryable(t *testing.T) {
	assert.False(t, isPostgresRetryable(nil))
	assert.False(t, isPostgresRetryable(context.Canceled))
	assert.False(t, isPostgresRetryable(context.DeadlineExceeded))
}

func TestRetryConfig(t *testing.T) {
	cfg := RetryConfig()

	assert.Equal(t, 4, cfg.MaxAttempts)
	require.NotNil(t, cfg.RetryableChecker)
	assert.True(t, cfg.RetryableChecker(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, cfg.RetryableChecker(&pgconn.PgError{Code: "23505"}))
}

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := source.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_ledger_events", identifier)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS ledger_events")

	down, _, err := source.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestClose_NilPool(t *testing.T) {
	assert.NotPanics(t, func() { Close(nil) })
}
