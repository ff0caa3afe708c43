package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
)

// Cache is the slice of the Redis client the cached provider needs
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedProvider is a read-through cache around a Provider. Cache failures
// degrade to pass-through; the inner provider is always the source of truth.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	ttl    time.Duration
	logger ectologger.Logger
}

// NewCachedProvider wraps a provider with a Redis-backed read-through cache
func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration, logger ectologger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Search serves from cache when possible and fills the cache on a miss.
// Provider errors are never cached.
func (p *CachedProvider) Search(ctx context.Context, query, countryHint string) ([]models.LocationCandidate, error) {
	key := cacheKey(query, countryHint)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		var candidates []models.LocationCandidate
		if err := json.Unmarshal([]byte(cached), &candidates); err == nil {
			metrics.RecordGeocodeCache("hit")
			return candidates, nil
		} else {
			p.logger.WithContext(ctx).WithError(err).Warn("Discarding malformed geocode cache entry")
		}
	}
	metrics.RecordGeocodeCache("miss")

	candidates, err := p.inner.Search(ctx, query, countryHint)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(candidates); err == nil {
		if err := p.cache.Set(ctx, key, string(encoded), p.ttl); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to cache geocode results")
		}
	}

	return candidates, nil
}

// cacheKey derives a stable key from the query and country hint, insensitive
// to case and surrounding whitespace
func cacheKey(query, countryHint string) string {
	norm := strings.ToLower(strings.TrimSpace(query)) + "|" + strings.ToLower(strings.TrimSpace(countryHint))
	sum := sha256.Sum256([]byte(norm))
	return "geocode:" + hex.EncodeToString(sum[:])
}
