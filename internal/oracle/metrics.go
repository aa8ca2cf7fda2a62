package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultInvalid = "invalid"
	resultHit     = "hit"
	resultMiss    = "miss"
)

var (
	oracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "oracle_requests_total",
		Help:      "Total number of price oracle reads by source and result",
	}, []string{"source", "result"})

	oracleLatestAnswer = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "giftcards",
		Name:      "oracle_latest_price_usd",
		Help:      "Most recent native asset price in USD reported by each source",
	}, []string{"source"})

	oracleCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "oracle_cache_lookups_total",
		Help:      "Total number of rate cache lookups by result",
	}, []string{"result"})
)

func recordRequest(source, result string) {
	oracleRequestsTotal.WithLabelValues(source, result).Inc()
}

func recordRate(source string, rate Rate) {
	value := float64(rate.Answer)
	for i := uint8(0); i < rate.Decimals; i++ {
		value /= 10
	}
	oracleLatestAnswer.WithLabelValues(source).Set(value)
}

func recordCache(result string) {
	oracleCacheTotal.WithLabelValues(result).Inc()
}
