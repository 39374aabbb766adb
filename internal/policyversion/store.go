// Package policyversion implements immutable, versioned policy storage.
// Every edit creates a new row rather than mutating one in place; exactly
// one version is ever marked active, swapped atomically inside a
// transaction the same way the engine's database helper wraps multi-
// statement writes.
package policyversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/policy"
	"github.com/riskcore/fraudengine/internal/repositories"
)

// Store persists policy versions in Postgres.
type Store struct {
	db *repositories.Database
}

// NewStore builds a policy version store.
func NewStore(db *repositories.Database) *Store {
	return &Store{db: db}
}

// ContentHash returns the sha256 hex digest of the policy's rule/list/
// threshold content, excluding version/audit metadata, so two policies with
// identical decisioning behavior hash identically regardless of when they
// were created.
func ContentHash(p *models.Policy) (string, error) {
	type content struct {
		Allowlist         []string      `json:"allowlist"`
		Blocklist         []string      `json:"blocklist"`
		Rules             []models.Rule `json:"rules"`
		BlockThreshold    float64       `json:"block_threshold"`
		ReviewThreshold   float64       `json:"review_threshold"`
		FrictionThreshold float64       `json:"friction_threshold"`
		DefaultAction     models.Action `json:"default_action"`
	}
	b, err := json.Marshal(content{p.Allowlist, p.Blocklist, p.Rules, p.BlockThreshold, p.ReviewThreshold, p.FrictionThreshold, p.DefaultAction})
	if err != nil {
		return "", fmt.Errorf("marshal policy content: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// NextVersion computes the version string for an edit to currentVersion of
// the given change kind: MINOR for rule changes and rollbacks, PATCH for
// threshold/list edits.
func NextVersion(currentVersion string, kind models.PolicyChangeKind) (string, error) {
	v, err := parseSemver(currentVersion)
	if err != nil {
		return "", err
	}
	switch kind {
	case models.ChangeRules, models.ChangeRollback:
		return v.bumpMinor().String(), nil
	case models.ChangeThreshold, models.ChangeList:
		return v.bumpPatch().String(), nil
	default:
		return "", fmt.Errorf("unknown change kind %q", kind)
	}
}

// Active returns the single active policy version.
func (s *Store) Active(ctx context.Context) (*models.Policy, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT version, content, content_hash, created_at, created_by
		FROM policy_versions WHERE active = true LIMIT 1`)

	var version, contentHash, createdBy string
	var createdAt time.Time
	var content []byte
	if err := row.Scan(&version, &content, &contentHash, &createdAt, &createdBy); err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}

	var p models.Policy
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("decode active policy content: %w", err)
	}
	p.Version, p.ContentHash, p.CreatedAt, p.CreatedBy, p.Active = version, contentHash, createdAt, createdBy, true
	return &p, nil
}

// Publish stores a new policy version as the new single active row,
// deactivating whatever was active before, inside one transaction.
func (s *Store) Publish(ctx context.Context, p *models.Policy, kind models.PolicyChangeKind) (*models.Policy, error) {
	if err := policy.ValidateThresholds(p); err != nil {
		return nil, fmt.Errorf("invalid policy thresholds: %w", err)
	}

	current, err := s.Active(ctx)
	if err != nil {
		// No active policy yet: this is the first version.
		current = &models.Policy{Version: "0.0.0"}
	}

	nextVersion, err := NextVersion(current.Version, kind)
	if err != nil {
		return nil, err
	}
	p.Version = nextVersion
	p.CreatedAt = time.Now()
	p.Active = true

	hash, err := ContentHash(p)
	if err != nil {
		return nil, err
	}
	p.ContentHash = hash

	content, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}

	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE policy_versions SET active = false WHERE active = true`); err != nil {
			return fmt.Errorf("deactivate current policy: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO policy_versions (version, content, content_hash, active, created_at, created_by)
			VALUES ($1, $2, $3, true, $4, $5)`,
			p.Version, content, p.ContentHash, p.CreatedAt, p.CreatedBy)
		if err != nil {
			return fmt.Errorf("insert policy version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Rollback republishes a prior version's content as a brand new version
// (never reactivates the old row in place, preserving immutability).
func (s *Store) Rollback(ctx context.Context, toVersion string, createdBy string) (*models.Policy, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT content FROM policy_versions WHERE version = $1`, toVersion)
	var content []byte
	if err := row.Scan(&content); err != nil {
		return nil, fmt.Errorf("load policy version %s: %w", toVersion, err)
	}

	var p models.Policy
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("decode policy version %s: %w", toVersion, err)
	}
	p.CreatedBy = createdBy

	return s.Publish(ctx, &p, models.ChangeRollback)
}

// History lists all versions, most recent first.
func (s *Store) History(ctx context.Context, limit int) ([]models.Policy, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT version, content_hash, active, created_at, created_by
		FROM policy_versions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list policy history: %w", err)
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Scan(&p.Version, &p.ContentHash, &p.Active, &p.CreatedAt, &p.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan policy history row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
