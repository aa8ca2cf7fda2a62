package giftcards

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "ledger_operations_total",
		Help:      "Total number of ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	cardsMintedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "cards_minted_total",
		Help:      "Total number of gift cards minted per template",
	}, []string{"template"})

	redeemedCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "redeemed_usd_cents_total",
		Help:      "Total USD cents consumed through redemptions",
	})

	journalAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "giftcards",
		Name:      "journal_append_duration_seconds",
		Help:      "Time spent persisting a ledger change",
		Buckets:   prometheus.DefBuckets,
	})
)

func recordOutcome(operation string, err error) {
	operationsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotOwner):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOracleRate), errors.Is(err, ErrOracleUnavailable):
		return "oracle"
	default:
		return "rejected"
	}
}
