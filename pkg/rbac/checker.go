package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/docket/pkg/auth"
)

// CheckerConfig configures a Checker
type CheckerConfig struct {
	// CacheSize bounds the number of users whose grants are cached
	CacheSize int
	// CacheTTL bounds how long a revoked grant can still be honored on
	// another replica
	CacheTTL time.Duration
	// Registerer receives the decision metrics; nil leaves them unregistered
	Registerer prometheus.Registerer
}

// DefaultCheckerConfig returns the defaults used by the daemon
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		CacheSize: 10000,
		CacheTTL:  time.Minute,
	}
}

// Checker authorizes operations using the static role table, then per-user
// grants. Grant sets are cached per user.
type Checker struct {
	store *Store
	cache *lru.LRU[string, []Grant]
	now   func() time.Time

	decisions *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
}

// NewChecker creates a checker backed by the grant store
func NewChecker(store *Store, cfg CheckerConfig) *Checker {
	def := DefaultCheckerConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	c := &Checker{
		store: store,
		cache: lru.NewLRU[string, []Grant](cfg.CacheSize, nil, cfg.CacheTTL),
		now:   time.Now,
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_authz_decisions_total",
				Help: "Authorization decisions by operation, result and source",
			},
			[]string{"operation", "result", "source"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_authz_grant_cache_total",
				Help: "Grant cache lookups by result",
			},
			[]string{"result"},
		),
	}

	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(c.decisions, c.cacheHits)
	}
	return c
}

// Authorize reports whether the session may perform op. A nil session is
// never authorized. Errors come only from the grant lookup.
func (c *Checker) Authorize(ctx context.Context, session *auth.Session, op Operation) (bool, error) {
	if session == nil {
		c.decisions.WithLabelValues(op.String(), "deny", "anonymous").Inc()
		return false, nil
	}

	if HasPermission(session.Role, op) {
		c.decisions.WithLabelValues(op.String(), "allow", "role").Inc()
		return true, nil
	}

	grants, err := c.grantsFor(ctx, session.UserID)
	if err != nil {
		return false, err
	}

	now := c.now()
	for _, g := range grants {
		if g.Operation == op && g.Active(now) {
			c.decisions.WithLabelValues(op.String(), "allow", "grant").Inc()
			return true, nil
		}
	}

	c.decisions.WithLabelValues(op.String(), "deny", "role").Inc()
	return false, nil
}

// EffectiveOperations lists everything the session may do right now
func (c *Checker) EffectiveOperations(ctx context.Context, session *auth.Session) ([]Operation, error) {
	if session == nil {
		return nil, nil
	}

	set := permissionTable[session.Role]
	grants, err := c.grantsFor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	for _, g := range grants {
		if g.Active(now) {
			set |= setOf(g.Operation)
		}
	}

	var ops []Operation
	for _, op := range AllOperations() {
		if set.has(op) {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// Invalidate drops the cached grants of a user
func (c *Checker) Invalidate(userID string) {
	c.cache.Remove(userID)
}

func (c *Checker) grantsFor(ctx context.Context, userID string) ([]Grant, error) {
	if grants, ok := c.cache.Get(userID); ok {
		c.cacheHits.WithLabelValues("hit").Inc()
		return grants, nil
	}
	c.cacheHits.WithLabelValues("miss").Inc()

	grants, err := c.store.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	c.cache.Add(userID, grants)
	return grants, nil
}
