package store

import (
	"context"
	"fmt"
	"time"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/queue"
)

// IdempotencyCache provides insert-or-ignore semantics for decisions keyed
// by the caller-supplied idempotency key, the same duplicate-detection
// pattern the ingestion handler uses against Postgres, but fast-pathed
// through Redis so the hot decisioning loop never pays a round trip to the
// evidence store to check for a duplicate.
type IdempotencyCache struct {
	cache *queue.CacheClient
	ttl   time.Duration
}

// NewIdempotencyCache creates an idempotency cache with the given retention.
func NewIdempotencyCache(cache *queue.CacheClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{cache: cache, ttl: ttl}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Reserve attempts to claim an idempotency key for a fresh decision. It
// returns (true, nil) if this caller won the race and should proceed, or
// (false, existing) if a decision for this key already exists.
func (c *IdempotencyCache) Reserve(ctx context.Context, key string) (bool, *models.Decision, error) {
	existing := &models.Decision{}
	if err := c.cache.Get(ctx, idempotencyKey(key), existing); err == nil {
		return false, existing, nil
	}

	ok, err := c.cache.SetNX(ctx, idempotencyKey(key), &models.Decision{}, c.ttl)
	if err != nil {
		return false, nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !ok {
		if err := c.cache.Get(ctx, idempotencyKey(key), existing); err != nil {
			return false, nil, fmt.Errorf("load reserved idempotency key: %w", err)
		}
		return false, existing, nil
	}
	return true, nil, nil
}

// Store records the final decision under the idempotency key, replacing the
// placeholder written by Reserve.
func (c *IdempotencyCache) Store(ctx context.Context, key string, decision *models.Decision) error {
	return c.cache.Set(ctx, idempotencyKey(key), decision, c.ttl)
}
