package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
)

// SharedCache is a second level cache shared between instances.
type SharedCache interface {
	GetCachedEvidence(ctx context.Context, query string, k int) ([]domain.Source, bool, error)
	CacheEvidence(ctx context.Context, query string, k int, sources []domain.Source, ttl time.Duration) error
}

// Cached wraps a Retriever with an in-process LRU and an optional shared
// cache. Cache failures are logged and fall through to the wrapped
// retriever; they never fail a search.
type Cached struct {
	next   Retriever
	local  *expirable.LRU[string, []domain.Source]
	shared SharedCache
	ttl    time.Duration
	log    logger.Logger
}

// NewCached returns a caching retriever. shared may be nil.
func NewCached(next Retriever, size int, ttl time.Duration, shared SharedCache, log logger.Logger) *Cached {
	if size <= 0 {
		size = 256
	}
	return &Cached{
		next:   next,
		local:  expirable.NewLRU[string, []domain.Source](size, nil, ttl),
		shared: shared,
		ttl:    ttl,
		log:    log,
	}
}

func (c *Cached) Name() string { return "cached(" + c.next.Name() + ")" }

func (c *Cached) Configured() bool { return Configured(c.next) }

func (c *Cached) Search(ctx context.Context, query string, k int) ([]domain.Source, error) {
	key := cacheKey(query, k)

	if hit, ok := c.local.Get(key); ok {
		return clone(hit), nil
	}

	if c.shared != nil {
		hit, ok, err := c.shared.GetCachedEvidence(ctx, query, k)
		switch {
		case err != nil:
			c.log.Warn("shared evidence cache read failed", logger.Error(err))
		case ok:
			c.local.Add(key, hit)
			return clone(hit), nil
		}
	}

	sources, err := c.next.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return sources, nil
	}

	c.local.Add(key, clone(sources))
	if c.shared != nil {
		if err := c.shared.CacheEvidence(ctx, query, k, sources, c.ttl); err != nil {
			c.log.Warn("shared evidence cache write failed", logger.Error(err))
		}
	}
	return sources, nil
}

// Purge drops the in-process entries.
func (c *Cached) Purge() { c.local.Purge() }

// Len returns the number of in-process entries.
func (c *Cached) Len() int { return c.local.Len() }

func cacheKey(query string, k int) string {
	return fmt.Sprintf("%d|%s", k, strings.ToLower(strings.TrimSpace(query)))
}

func clone(in []domain.Source) []domain.Source {
	return append([]domain.Source(nil), in...)
}
