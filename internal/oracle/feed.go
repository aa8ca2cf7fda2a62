package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
	"github.com/richxcame/giftcard-ledger/pkg/tracing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errMalformedFeed = errors.New("oracle: malformed feed response")

// StatusError reports a non-200 answer from the price feed.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle: feed returned status %d", e.Code)
}

// FeedConfig configures a FeedOracle.
type FeedConfig struct {
	URL      string
	AssetID  string
	Decimals uint8
	Timeout  time.Duration
	Breaker  resilience.Settings
	Retry    resilience.RetryConfig
}

// FeedOracle reads a spot price from a CoinGecko-style simple price endpoint:
// GET {url}?ids={asset}&vs_currencies=usd -> {"<asset>":{"usd":1234.56}}.
type FeedOracle struct {
	client   *http.Client
	endpoint string
	asset    string
	decimals uint8
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	now      func() time.Time
}

// NewFeedOracle builds a feed oracle. A nil client gets one with cfg.Timeout.
func NewFeedOracle(cfg FeedConfig, client *http.Client) *FeedOracle {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "oracle-feed"
	}
	retry := cfg.Retry
	if retry.RetryableChecker == nil {
		retry.RetryableChecker = isRetryable
	}

	return &FeedOracle{
		client:   client,
		endpoint: cfg.URL,
		asset:    cfg.AssetID,
		decimals: cfg.Decimals,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker, resilience.GracefulDegradation(cfg.Breaker.Name)),
		retry:    retry,
		now:      time.Now,
	}
}

// LatestRate fetches the current spot price.
func (o *FeedOracle) LatestRate(ctx context.Context) (Rate, error) {
	result, err := resilience.RetryWithBreaker(ctx, o.retry, o.breaker, func(ctx context.Context) (interface{}, error) {
		return o.fetch(ctx)
	})
	if err != nil {
		recordRequest("feed", resultError)
		logger.WithContext(ctx).Warn("price feed unavailable",
			zap.String("asset", o.asset),
			zap.Error(err),
		)
		return Rate{}, fmt.Errorf("fetch %s price: %w", o.asset, err)
	}

	rate := result.(Rate)
	recordRequest("feed", resultOK)
	recordRate("feed", rate)
	return rate, nil
}

func (o *FeedOracle) fetch(ctx context.Context) (rate Rate, err error) {
	ctx, span := tracing.Start(ctx, "oracle.fetch",
		attribute.String("oracle.asset", o.asset),
		attribute.String("http.method", http.MethodGet),
	)
	defer func() { tracing.End(span, err) }()

	endpoint, err := url.Parse(o.endpoint)
	if err != nil {
		return Rate{}, fmt.Errorf("parse feed url: %w", err)
	}
	query := endpoint.Query()
	query.Set("ids", o.asset)
	query.Set("vs_currencies", "usd")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Rate{}, err
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := o.client.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return Rate{}, &StatusError{Code: resp.StatusCode}
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rate{}, fmt.Errorf("%w: %v", errMalformedFeed, err)
	}
	price, ok := body[o.asset]["usd"]
	if !ok {
		return Rate{}, fmt.Errorf("%w: no usd price for %q", errMalformedFeed, o.asset)
	}

	answer := price.Shift(int32(o.decimals)).Round(0)
	if !answer.IsPositive() || !answer.BigInt().IsInt64() {
		return Rate{}, ErrInvalidRate
	}

	return Rate{
		Answer:    answer.IntPart(),
		Decimals:  o.decimals,
		UpdatedAt: o.now(),
	}, nil
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.IsRetryableHTTPStatus(statusErr.Code)
	}
	if errors.Is(err, errMalformedFeed) || errors.Is(err, ErrInvalidRate) {
		return false
	}
	return true
}
