package giftcards

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/pkg/eventbus"
)

// Journal persists every applied change in order so the ledger can be rebuilt.
// An Append that returns an error may still have stored the record; Discard
// removes it by id and succeeds when the record is absent.
type Journal interface {
	Append(ctx context.Context, record Record) error
	Discard(ctx context.Context, id uuid.UUID) error
	Replay(ctx context.Context, fn func(Record) error) error
}

// Publisher announces committed changes to other services.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// NopJournal keeps nothing; the ledger lives only in memory.
type NopJournal struct{}

func (NopJournal) Append(ctx context.Context, record Record) error { return nil }

func (NopJournal) Discard(ctx context.Context, id uuid.UUID) error { return nil }

func (NopJournal) Replay(ctx context.Context, fn func(Record) error) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	return nil
}
