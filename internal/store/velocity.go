// Package store provides the Redis-backed stores behind the decisioning
// pipeline: sliding-window velocity counters, entity profiles and the
// idempotency cache. It builds on queue.CacheClient rather than talking to
// go-redis directly, so every key has a single place that owns its TTL and
// naming convention.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/queue"
)

// maxRetention is the longest window any caller windows over (30 days); a
// metric's backing sorted set is kept alive this long plus slack so any
// window query against it can still be answered, and cleanup_expired (not
// this TTL) is what actually prunes old members out of the set.
const maxRetention = 30*24*time.Hour + time.Hour

// VelocityStore maintains per-entity event and distinct-value counters. Each
// (entity, metric) pair is backed by a single Redis sorted set of
// (member, timestamp_ms) pairs: event counters use a unique event ID as the
// member (so recording the same event twice is a no-op), distinct counters
// use the distinct value itself as the member (so re-observing a value just
// advances its timestamp). Both flavors support add/count/has-member/
// remove-older-than over arbitrary windows, per the physical representation
// described for velocity counters.
type VelocityStore struct {
	cache *queue.CacheClient
}

// NewVelocityStore creates a velocity store over the given cache client.
func NewVelocityStore(cache *queue.CacheClient) *VelocityStore {
	return &VelocityStore{cache: cache}
}

func metricKey(kind models.EntityKind, key string, metric models.VelocityMetric) string {
	return fmt.Sprintf("velocity:%s:%s:%s", kind, key, metric)
}

// Increment records one occurrence of an event-counter metric (attempts,
// declines, transactions, ...) for an entity, deduplicating on eventID: a
// retried event is not double-counted. Returns true iff this call actually
// added a new member.
func (s *VelocityStore) Increment(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, eventID string, at time.Time) (bool, error) {
	k := metricKey(kind, key, metric)
	_, exists, err := s.cache.ZScore(ctx, k, eventID)
	if err != nil {
		return false, fmt.Errorf("increment %s/%s/%s: %w", kind, key, metric, err)
	}
	if exists {
		return false, nil
	}
	if err := s.cache.ZAddTimestamped(ctx, k, eventID, at.UnixMilli(), maxRetention); err != nil {
		return false, fmt.Errorf("increment %s/%s/%s: %w", kind, key, metric, err)
	}
	return true, nil
}

// Count returns the number of members of an event-counter metric recorded
// at or after now-window.
func (s *VelocityStore) Count(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, now time.Time, window time.Duration) (int64, error) {
	since := now.Add(-window).UnixMilli()
	count, err := s.cache.ZCountSince(ctx, metricKey(kind, key, metric), since)
	if err != nil {
		return 0, fmt.Errorf("count %s/%s/%s: %w", kind, key, metric, err)
	}
	return count, nil
}

// AddDistinct records an observation of value under a distinct-counter
// metric (distinct_cards, distinct_devices, ...) for an entity. A repeat
// observation of the same value just advances its timestamp rather than
// adding a second member.
func (s *VelocityStore) AddDistinct(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, value string, at time.Time) error {
	if value == "" {
		return nil
	}
	if err := s.cache.ZAddTimestamped(ctx, metricKey(kind, key, metric), value, at.UnixMilli(), maxRetention); err != nil {
		return fmt.Errorf("add distinct %s/%s/%s: %w", kind, key, metric, err)
	}
	return nil
}

// CountDistinct returns the number of distinct values whose latest
// observation under a metric is at or after now-window.
func (s *VelocityStore) CountDistinct(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, now time.Time, window time.Duration) (int64, error) {
	return s.Count(ctx, kind, key, metric, now, window)
}

// HasDistinct reports whether value's most recent observation under a
// distinct-counter metric is at or after now-window.
func (s *VelocityStore) HasDistinct(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, value string, now time.Time, window time.Duration) (bool, error) {
	if value == "" {
		return false, nil
	}
	score, exists, err := s.cache.ZScore(ctx, metricKey(kind, key, metric), value)
	if err != nil {
		return false, fmt.Errorf("has distinct %s/%s/%s: %w", kind, key, metric, err)
	}
	if !exists {
		return false, nil
	}
	since := now.Add(-window).UnixMilli()
	return score >= since, nil
}

// CleanupExpired removes every member of a metric older than maxAge and
// returns how many were removed. Count does not prune, so this is the only
// per-member cleanup; the key's TTL drops the whole set only once it stops
// receiving writes.
func (s *VelocityStore) CleanupExpired(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, now time.Time, maxAge time.Duration) (int64, error) {
	cutoff := now.Add(-maxAge).UnixMilli()
	n, err := s.cache.ZRemRangeByScoreOlderThan(ctx, metricKey(kind, key, metric), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired %s/%s/%s: %w", kind, key, metric, err)
	}
	return n, nil
}

// CountsForWindows is a convenience wrapper returning event-counter counts
// across every window in models.AllWindows for one entity/metric, used to
// populate a FeatureSnapshot's per-window velocity maps.
func (s *VelocityStore) CountsForWindows(ctx context.Context, kind models.EntityKind, key string, metric models.VelocityMetric, now time.Time) (map[models.VelocityWindow]models.VelocityCount, error) {
	result := make(map[models.VelocityWindow]models.VelocityCount, len(models.AllWindows))
	for _, w := range models.AllWindows {
		c, err := s.Count(ctx, kind, key, metric, now, w.Duration())
		if err != nil {
			return nil, err
		}
		result[w] = models.VelocityCount{Count: c}
	}
	return result, nil
}
