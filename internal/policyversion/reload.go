package policyversion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/models"
)

// Reloader polls a JSON file on disk and publishes its content as a new
// policy version whenever the file's content hash no longer matches the
// currently active one. This gives operators a break-glass path to push a
// policy change without going through the admin API, for environments where
// the file is managed by an external config-distribution system.
type Reloader struct {
	store  *Store
	path   string
	period time.Duration
}

// NewReloader builds a Reloader. path empty disables reloading entirely;
// callers should check Enabled before starting the loop.
func NewReloader(store *Store, path string, period time.Duration) *Reloader {
	return &Reloader{store: store, path: path, period: period}
}

// Enabled reports whether a reload path was configured.
func (r *Reloader) Enabled() bool {
	return r.path != ""
}

// Run polls the configured path until ctx is cancelled. Errors reading or
// parsing the file are logged and skipped — a malformed file on disk must
// never crash the process or block the decisioning pipeline.
func (r *Reloader) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reloadOnce(ctx); err != nil {
				log.Warn().Err(err).Str("path", r.path).Msg("policy hot-reload check failed")
			}
		}
	}
}

func (r *Reloader) reloadOnce(ctx context.Context) error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var candidate models.Policy
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	hash, err := ContentHash(&candidate)
	if err != nil {
		return fmt.Errorf("hash candidate policy: %w", err)
	}

	active, err := r.store.Active(ctx)
	if err == nil && active.ContentHash == hash {
		return nil
	}

	candidate.CreatedBy = "file-reload"
	if _, err := r.store.Publish(ctx, &candidate, models.ChangeRules); err != nil {
		return fmt.Errorf("publish reloaded policy: %w", err)
	}

	log.Info().Str("path", r.path).Str("content_hash", hash).Msg("published policy from hot-reload file")
	return nil
}
