package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meridianworks/rulegate/internal/types"
)

/*
 * Read-through rule cache. Evaluation passes hit the catalog on every save
 * path of the host application, so per-trigger rule lists are cached with a
 * short TTL. Concurrent misses for the same trigger collapse into one
 * database query via singleflight. Invalidate drops everything after a
 * catalog edit; rule changes otherwise become visible within one TTL.
 */

// RuleLister is the upstream catalog the cache reads through to.
type RuleLister interface {
	ListRules(ctx context.Context, trigger string) ([]*types.Rule, error)
}

// DefaultCacheTTL bounds staleness when the caller does not configure one.
const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	rules   []*types.Rule
	expires time.Time
}

// CachedSource is a TTL read-through cache over a rule catalog.
// Safe for concurrent use.
type CachedSource struct {
	upstream RuleLister
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedSource wraps the upstream catalog. ttl <= 0 selects
// DefaultCacheTTL.
func NewCachedSource(upstream RuleLister, ttl time.Duration, log *zap.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedSource{
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
		entries:  make(map[string]cacheEntry),
	}
}

// ListRules serves from cache when fresh, otherwise loads through
// singleflight so one query serves all concurrent callers.
func (c *CachedSource) ListRules(ctx context.Context, trigger string) ([]*types.Rule, error) {
	c.mu.RLock()
	entry, ok := c.entries[trigger]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expires) {
		return entry.rules, nil
	}

	v, err, _ := c.group.Do(trigger, func() (any, error) {
		rules, err := c.upstream.ListRules(ctx, trigger)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[trigger] = cacheEntry{rules: rules, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		// Serve a stale entry over failing the pass when one exists. The
		// warn line is the administrator's signal that the catalog is down.
		if ok {
			c.log.Warn("rule catalog unavailable, serving expired cache entry",
				zap.String("trigger", trigger),
				zap.Error(err))
			return entry.rules, nil
		}
		return nil, err
	}
	return v.([]*types.Rule), nil
}

// Invalidate drops all cached entries. Called after catalog edits.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
