// Package eventbus publishes domain events on NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Event is the envelope every message on the bus carries.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Config configures the NATS connection.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// Bus is a NATS-backed event publisher.
type Bus struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials NATS and keeps reconnecting for the life of the process.
func Connect(cfg Config) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("eventbus: disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("eventbus: reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("eventbus: connected to NATS", zap.String("url", cfg.URL))
	return &Bus{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// Subject prepends the configured prefix to subject.
func (b *Bus) Subject(subject string) string {
	return joinSubject(b.prefix, subject)
}

// Publish sends event on the prefixed subject.
func (b *Bus) Publish(ctx context.Context, subject string, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	ctx, span := tracing.Start(ctx, "eventbus.publish",
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination", b.Subject(subject)),
	)
	msg := nats.NewMsg(b.Subject(subject))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	tracing.InjectHTTP(ctx, http.Header(msg.Header))

	err = b.conn.PublishMsg(msg)
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Healthy reports whether the connection is currently up.
func (b *Bus) Healthy() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

func joinSubject(prefix, subject string) string {
	prefix = strings.Trim(prefix, ".")
	subject = strings.Trim(subject, ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}
