package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

// SummaryCache keeps rendered dashboard payloads in Redis under a short TTL.
// Losing Redis only costs a recomputation on the next request.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache constructs a summary cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(scope string) string {
	if scope == "" {
		scope = "all"
	}
	return "dashboard:summary:" + scope
}

// Get returns the cached payload for a scope, or ErrCacheMiss.
func (c *SummaryCache) Get(ctx context.Context, scope string) ([]byte, error) {
	if c.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := summaryKey(scope)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}

// Set stores a payload under its scope, refreshing the TTL.
func (c *SummaryCache) Set(ctx context.Context, scope string, payload []byte) error {
	if c.client == nil {
		return nil
	}
	key := summaryKey(scope)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
