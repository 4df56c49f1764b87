package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/docket/pkg/observability"
)

const (
	failureWindow   = 15 * time.Minute
	failureLRUItems = 10000
)

// LoginThrottleConfig configures a LoginThrottle
type LoginThrottleConfig struct {
	PerMinute int
	Burst     int
	// FailureAlert is the number of failures per email inside the failure
	// window at which RecordFailure starts reporting an alert
	FailureAlert int
	// Redis shares counters across replicas; nil keeps them in process
	Redis *redis.Client
}

// LoginThrottle limits login attempts per client IP and per email and counts
// consecutive failures per email. With Redis configured the counters are
// shared; a Redis error falls back to the in-process limiter for that call.
type LoginThrottle struct {
	local         *RateLimiter
	localFailures *expirable.LRU[string, int]
	shared        *DistributedRateLimiter
	failures      *DistributedRateLimiter
	alertAt       int
}

// NewLoginThrottle creates a login throttle
func NewLoginThrottle(cfg LoginThrottleConfig) *LoginThrottle {
	limits := LoginRateLimitConfig(cfg.PerMinute, cfg.Burst)
	t := &LoginThrottle{
		local:         NewRateLimiter(limits),
		localFailures: expirable.NewLRU[string, int](failureLRUItems, nil, failureWindow),
		alertAt:       cfg.FailureAlert,
	}
	if cfg.Redis != nil {
		t.shared = NewDistributedRateLimiter(cfg.Redis, limits, "docket:login")
		t.failures = NewDistributedRateLimiter(cfg.Redis, &RateLimitConfig{WindowDuration: failureWindow}, "docket:login-failures")
	}
	return t
}

// StartCleanup sweeps idle in-process buckets until ctx is done
func (t *LoginThrottle) StartCleanup(ctx context.Context) {
	t.local.StartCleanup(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Allow reports whether a login attempt from ip for email may proceed
func (t *LoginThrottle) Allow(ctx context.Context, ip, email string) bool {
	for _, key := range []string{"ip:" + ip, "email:" + normalizeEmail(email)} {
		if t.shared != nil {
			ok, err := t.shared.Allow(ctx, key)
			if err == nil {
				if !ok {
					return false
				}
				continue
			}
			observability.FromContext(ctx).WithError(err).Warn("Shared login limiter unavailable, using local limiter")
		}
		if !t.local.Allow(key) {
			return false
		}
	}
	return true
}

// RecordFailure counts a failed login for email. alert is true once the
// count reaches the configured threshold.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email string) (count int, alert bool) {
	key := normalizeEmail(email)
	if t.failures != nil {
		n, err := t.failures.Incr(ctx, key)
		if err == nil {
			return int(n), t.alertAt > 0 && int(n) >= t.alertAt
		}
		observability.FromContext(ctx).WithError(err).Warn("Shared failure counter unavailable, using local counter")
	}
	n, _ := t.localFailures.Get(key)
	n++
	t.localFailures.Add(key, n)
	return n, t.alertAt > 0 && n >= t.alertAt
}

// RecordSuccess clears the failure count for email
func (t *LoginThrottle) RecordSuccess(ctx context.Context, email string) {
	key := normalizeEmail(email)
	t.localFailures.Remove(key)
	if t.failures != nil {
		if err := t.failures.Reset(ctx, key); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to reset shared failure counter")
		}
	}
}
