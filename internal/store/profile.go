package store

import (
	"context"
	"fmt"
	"time"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/queue"
)

// ProfileStore persists EntityProfile snapshots in Redis as one JSON value
// per entity, keyed by entity kind and key. Profiles are read-modify-written:
// callers load the current profile, call Touch/ObserveAmount, then Save.
type ProfileStore struct {
	cache *queue.CacheClient
	ttl   time.Duration
}

// NewProfileStore creates a profile store with the given retention TTL
// (refreshed on every write, per spec's entity-profile retention rule).
func NewProfileStore(cache *queue.CacheClient, ttl time.Duration) *ProfileStore {
	return &ProfileStore{cache: cache, ttl: ttl}
}

func profileKey(kind models.EntityKind, key string) string {
	return fmt.Sprintf("profile:%s:%s", kind, key)
}

// Load returns the stored profile for kind/key, or a freshly zeroed profile
// if none exists yet.
func (s *ProfileStore) Load(ctx context.Context, kind models.EntityKind, key string) (*models.EntityProfile, error) {
	var p models.EntityProfile
	if err := s.cache.Get(ctx, profileKey(kind, key), &p); err != nil {
		return &models.EntityProfile{Kind: kind, Key: key}, nil
	}
	return &p, nil
}

// Save persists the profile, refreshing its TTL.
func (s *ProfileStore) Save(ctx context.Context, p *models.EntityProfile) error {
	return s.cache.Set(ctx, profileKey(p.Kind, p.Key), p, s.ttl)
}
