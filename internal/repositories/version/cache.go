package version

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/sage/pkg/redis"
)

// CachedRepository is a read-through cache over a Resolver. Latest version
// lookups happen on every read and write of a paper, so they get a short
// Redis TTL; Ensure invalidates the cached value.
type CachedRepository struct {
	inner  Resolver
	cache  *redis.Client
	ttl    time.Duration
	logger ectologger.Logger
}

// NewCachedRepository creates a new cached version resolver
func NewCachedRepository(inner Resolver, cache *redis.Client, ttl time.Duration, logger ectologger.Logger) *CachedRepository {
	return &CachedRepository{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(paperID string) string {
	return "sage:latest_version:" + paperID
}

// Latest returns the cached latest version, falling back to the inner
// resolver on a miss. Cache failures degrade to the inner resolver.
func (c *CachedRepository) Latest(ctx context.Context, paperID string) (int, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "version.CachedRepository.Latest")
	defer span.End()

	cached, err := c.cache.Get(ctx, cacheKey(paperID))
	if err == nil {
		if version, parseErr := strconv.Atoi(cached); parseErr == nil {
			return version, true, nil
		}
		// an unparseable entry is stale garbage; drop it and refill below
		if delErr := c.cache.Del(ctx, cacheKey(paperID)); delErr != nil {
			c.logger.WithContext(ctx).WithError(delErr).WithFields(map[string]any{"paper_id": paperID}).Warn("Failed to drop bad version cache entry")
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID}).Warn("Version cache read failed")
	}

	version, ok, err := c.inner.Latest(ctx, paperID)
	if err != nil || !ok {
		return version, ok, err
	}

	if setErr := c.cache.Set(ctx, cacheKey(paperID), strconv.Itoa(version), c.ttl); setErr != nil {
		c.logger.WithContext(ctx).WithError(setErr).WithFields(map[string]any{"paper_id": paperID}).Warn("Version cache write failed")
	}
	return version, true, nil
}

// Ensure records the version and invalidates the cached latest value.
func (c *CachedRepository) Ensure(ctx context.Context, paperID string, version int) error {
	ctx, span := tracing.StartSpan(ctx, "version.CachedRepository.Ensure")
	defer span.End()

	if err := c.inner.Ensure(ctx, paperID, version); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, cacheKey(paperID)); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID}).Warn("Version cache invalidation failed")
	}
	return nil
}
