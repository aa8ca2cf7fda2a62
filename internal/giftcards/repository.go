package giftcards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/giftcard-ledger/pkg/database"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
)

// Repository is the Postgres-backed ledger journal
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new journal repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append stores one record. Retries are safe because event ids are unique.
func (r *Repository) Append(ctx context.Context, record Record) error {
	query := `
		INSERT INTO ledger_events (event_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := resilience.Retry(ctx, database.RetryConfig(), func(ctx context.Context) (interface{}, error) {
		_, err := r.db.Exec(ctx, query, record.ID, string(record.Type), []byte(record.Payload), record.OccurredAt)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("append %s event: %w", record.Type, err)
	}
	return nil
}

// Discard deletes the record with id. Deleting an absent record is not an error.
func (r *Repository) Discard(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM ledger_events WHERE event_id = $1`

	_, err := resilience.Retry(ctx, database.RetryConfig(), func(ctx context.Context) (interface{}, error) {
		_, err := r.db.Exec(ctx, query, id)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("discard event %s: %w", id, err)
	}
	return nil
}

// Replay streams every record in commit order to fn
func (r *Repository) Replay(ctx context.Context, fn func(Record) error) error {
	query := `
		SELECT event_id, event_type, payload, occurred_at
		FROM ledger_events
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			record    Record
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&record.ID, &eventType, &payload, &record.OccurredAt); err != nil {
			return fmt.Errorf("scan ledger event: %w", err)
		}
		record.Type = EventType(eventType)
		record.Payload = payload

		if err := fn(record); err != nil {
			return err
		}
	}

	return rows.Err()
}
