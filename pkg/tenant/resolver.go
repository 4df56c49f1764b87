package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/storage"
)

const (
	keyCase     = "case_department"
	keyDocument = "document_department"
	redisPrefix = "docket:dept:"
)

// Resolver maps cases and documents to the department that owns them. A
// case never changes department and a document never changes case, so
// answers are cached in an in-process LRU and, when configured, in Redis.
type Resolver struct {
	db      *sql.DB
	l1      *expirable.LRU[string, string]
	redis   *storage.RedisClient
	ttl     map[string]time.Duration
	metrics *observability.Metrics
	log     *logrus.Logger
}

// ResolverOptions configures a Resolver. Redis, Metrics and Logger are
// optional.
type ResolverOptions struct {
	Redis   *storage.RedisClient
	Metrics *observability.Metrics
	Logger  *logrus.Logger
}

// NewResolver creates a department resolver using the cache sizes and TTLs
// from cfg
func NewResolver(db *sql.DB, cfg storage.Config, opts ResolverOptions) *Resolver {
	ttl := map[string]time.Duration{
		keyCase:     cfg.CacheTTL[keyCase],
		keyDocument: cfg.CacheTTL[keyDocument],
	}
	for k, v := range ttl {
		if v <= 0 {
			ttl[k] = 24 * time.Hour
		}
	}
	size := cfg.L1CacheSize
	if size <= 0 {
		size = 10000
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Resolver{
		db:      db,
		ttl:     ttl,
		metrics: opts.Metrics,
		log:     log,
	}
	if cfg.CacheEnabled {
		r.l1 = expirable.NewLRU[string, string](size, nil, ttl[keyCase])
		r.redis = opts.Redis
	}
	return r
}

// CaseDepartment returns the department of a case or cases.ErrNotFound
func (r *Resolver) CaseDepartment(ctx context.Context, caseID string) (string, error) {
	return r.resolve(ctx, keyCase, caseID, func() (string, error) {
		var dept string
		err := r.db.QueryRowContext(ctx, "SELECT department_id FROM cases WHERE id = $1", caseID).Scan(&dept)
		if err == sql.ErrNoRows {
			return "", cases.ErrNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve case department: %w", err)
		}
		return dept, nil
	})
}

// DocumentDepartment returns the department of a document's case or
// documents.ErrNotFound
func (r *Resolver) DocumentDepartment(ctx context.Context, documentID string) (string, error) {
	return r.resolve(ctx, keyDocument, documentID, func() (string, error) {
		return documents.DepartmentOf(ctx, r.db, documentID)
	})
}

// Forget drops cached answers for deleted cases and documents
func (r *Resolver) Forget(ctx context.Context, keyType string, ids ...string) {
	if len(ids) == 0 {
		return
	}
	redisKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.l1 != nil {
			r.l1.Remove(keyType + ":" + id)
		}
		redisKeys = append(redisKeys, redisPrefix+keyType+":"+id)
	}
	if r.redis != nil {
		if err := r.redis.Delete(ctx, redisKeys...); err != nil {
			r.log.WithError(err).Warn("Failed to evict department cache entries")
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, keyType, id string, load func() (string, error)) (string, error) {
	key := keyType + ":" + id

	if r.l1 != nil {
		if dept, ok := r.l1.Get(key); ok {
			r.observe(true, "l1", keyType)
			return dept, nil
		}
		r.observe(false, "l1", keyType)
	}

	if r.redis != nil {
		var dept string
		err := r.redis.GetJSON(ctx, redisPrefix+key, &dept)
		switch {
		case err == nil:
			r.observe(true, "redis", keyType)
			if r.l1 != nil {
				r.l1.Add(key, dept)
			}
			return dept, nil
		case errors.Is(err, storage.ErrCacheMiss):
			r.observe(false, "redis", keyType)
		default:
			r.log.WithError(err).Warn("Department cache lookup failed, falling back to database")
		}
	}

	dept, err := load()
	if err != nil {
		return "", err
	}

	if r.l1 != nil {
		r.l1.Add(key, dept)
	}
	if r.redis != nil {
		if err := r.redis.SetJSON(ctx, redisPrefix+key, dept, r.ttl[keyType]); err != nil {
			r.log.WithError(err).Warn("Failed to populate department cache")
		}
	}
	return dept, nil
}

func (r *Resolver) observe(hit bool, tier, keyType string) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CacheHitsTotal.WithLabelValues(tier, keyType).Inc()
	} else {
		r.metrics.CacheMissesTotal.WithLabelValues(tier, keyType).Inc()
	}
}
