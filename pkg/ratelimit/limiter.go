// Package ratelimit implements fixed-window request limits shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/giftcard-ledger/pkg/config"
)

// IdentityType distinguishes callers with and without a verified token
type IdentityType int

const (
	IdentityAnonymous IdentityType = iota
	IdentityAuthenticated
)

// Rule is the budget applied to one identity on one endpoint.
// Limit+Burst requests are allowed per Window.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Result reports the outcome of one Allow call
type Result struct {
	Allowed      bool
	Remaining    int
	RetryAfter   time.Duration
	Limit        int
	Window       time.Duration
	ResetAfter   time.Duration
	IdentityKey  string
	EndpointKey  string
	IdentityType IdentityType
}

// INCR the window counter, set its expiry on first use, return {count, pttl}.
const windowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

// Limiter counts requests per endpoint and identity in Redis
type Limiter struct {
	client redis.Scripter
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

// NewLimiter creates a limiter backed by client
func NewLimiter(client redis.Scripter, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(windowScript),
		now:    time.Now,
	}
}

// WithNow overrides the clock used to pick the current window
func (l *Limiter) WithNow(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// ScriptHash returns the SHA1 the window script is invoked under
func (l *Limiter) ScriptHash() string {
	return l.script.Hash()
}

// RuleFor resolves the rule for endpoint, applying any configured override
func (l *Limiter) RuleFor(endpoint string, identityType IdentityType) Rule {
	rule := Rule{
		Limit:  l.cfg.DefaultLimit,
		Burst:  l.cfg.DefaultBurst,
		Window: l.cfg.Window(),
	}
	if identityType == IdentityAnonymous {
		rule.Limit = l.cfg.AnonymousLimit
		rule.Burst = l.cfg.AnonymousBurst
	}

	if override, ok := l.cfg.EndpointOverrides[endpoint]; ok {
		limit, burst := override.AuthenticatedLimit, override.AuthenticatedBurst
		if identityType == IdentityAnonymous {
			limit, burst = override.AnonymousLimit, override.AnonymousBurst
		}
		if limit > 0 {
			rule.Limit = limit
		}
		if burst >= 0 {
			rule.Burst = burst
		}
		if override.WindowSeconds > 0 {
			rule.Window = time.Duration(override.WindowSeconds) * time.Second
		}
	}

	if rule.Burst < 0 {
		rule.Burst = 0
	}
	return rule
}

// Allow counts one request and reports whether it fits the rule.
// Disabled limiters and non-positive limits allow everything.
func (l *Limiter) Allow(ctx context.Context, endpoint, identity string, rule Rule, identityType IdentityType) (Result, error) {
	result := Result{
		Allowed:      true,
		Remaining:    rule.Limit,
		Limit:        rule.Limit,
		Window:       rule.Window,
		IdentityKey:  identity,
		EndpointKey:  endpoint,
		IdentityType: identityType,
	}
	if !l.cfg.Enabled || rule.Limit <= 0 {
		return result, nil
	}

	window := rule.Window
	if window <= 0 {
		window = l.cfg.Window()
		result.Window = window
	}
	// buckets are keyed by millisecond
	if window < time.Millisecond {
		window = time.Millisecond
		result.Window = window
	}

	bucket := l.now().UnixMilli() / window.Milliseconds()
	key := fmt.Sprintf("%s:%s:%s:%d", l.cfg.RedisPrefix, endpoint, identity, bucket)

	values, err := l.script.Run(ctx, l.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return result, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}
	if len(values) != 2 {
		return result, fmt.Errorf("rate limit %s: unexpected script reply %v", endpoint, values)
	}

	count := toInt(values[0])
	ttl := time.Duration(toInt(values[1])) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	capacity := rule.Limit + rule.Burst

	result.ResetAfter = ttl
	result.Remaining = capacity - count
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if count > capacity {
		result.Allowed = false
		result.RetryAfter = ttl
	}
	return result, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
