// Package evidence implements the durable, redacted audit trail for every
// decision and the AEAD-encrypted full-fidelity vault it points to. The
// insert path doubles as an idempotency guard at the database level: a
// repeated idempotency key is rejected by a unique constraint rather than
// silently overwriting a prior decision's evidence, the same ON CONFLICT
// DO NOTHING duplicate-detection the ingestion handler applies to
// transactions.
package evidence

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/repositories"
)

// Vault encrypts and hashes the sensitive parts of a decision before they
// are written to the redacted audit row, and stores the full-fidelity
// payload separately under authenticated encryption.
type Vault struct {
	hmacKey []byte
	aead    cipher.AEAD
}

// NewVault builds a vault from a 32-byte key, used unchanged both as the HMAC
// key for redaction hashes and as the AES-256-GCM key for the encrypted
// vault row. Authenticated symmetric encryption is a better
// fit here than the engine's bcrypt usage, which is a one-way password
// hash, not a reversible cipher — see the design ledger for why bcrypt
// wasn't reused for this concern.
func NewVault(key [32]byte) (*Vault, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &Vault{hmacKey: key[:], aead: aead}, nil
}

// HashEntity produces a stable, non-reversible identifier for an entity
// value (account ID, card fingerprint, device ID) to store in the redacted
// evidence row instead of the raw value.
func (v *Vault) HashEntity(value string) string {
	mac := hmac.New(sha256.New, v.hmacKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal encrypts the full-fidelity payload for vault storage.
func (v *Vault) Seal(payload interface{}) (*models.VaultRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal vault payload: %w", err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, data, nil)
	return &models.VaultRecord{
		Ref:        uuid.New().String(),
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now(),
	}, nil
}

// Open decrypts a vault record back into dest.
func (v *Vault) Open(record *models.VaultRecord, dest interface{}) error {
	plaintext, err := v.aead.Open(nil, record.Nonce, record.Ciphertext, nil)
	if err != nil {
		return fmt.Errorf("open vault record %s: %w", record.Ref, err)
	}
	return json.Unmarshal(plaintext, dest)
}

// Store persists evidence rows and vault records in Postgres.
type Store struct {
	db    *repositories.Database
	vault *Vault
	ttl   time.Duration
}

// NewStore builds an evidence store with the given retention TTL.
func NewStore(db *repositories.Database, vault *Vault, ttl time.Duration) *Store {
	return &Store{db: db, vault: vault, ttl: ttl}
}

// Record writes the redacted evidence row and the encrypted vault row for
// one decision, inside one transaction. A duplicate idempotency key is
// reported back as (nil, nil) rather than an error: the caller already has
// the original decision via the idempotency cache and this is a benign
// race, not a failure.
func (s *Store) Record(ctx context.Context, event *models.PaymentEvent, snapshot *models.FeatureSnapshot, scores models.RiskScores, decision *models.Decision) (*models.EvidenceRecord, error) {
	vaultRecord, err := s.vault.Seal(struct {
		Event    *models.PaymentEvent    `json:"event"`
		Features *models.FeatureSnapshot `json:"features"`
		Scores   models.RiskScores       `json:"scores"`
	}{event, snapshot, scores})
	if err != nil {
		return nil, fmt.Errorf("seal vault record: %w", err)
	}

	reasonsJSON, _ := json.Marshal(decision.Reasons)
	featuresJSON := models.JSONB{
		"amount_z_score":       snapshot.AmountZScore,
		"implied_speed_kmh":    snapshot.ImpliedSpeedKmh,
		"is_new_device":        snapshot.IsNewDeviceForUser,
		"is_new_card":          snapshot.IsNewCardForUser,
		"is_high_risk_country": snapshot.IsHighRiskCountry,
		"degraded":             snapshot.Degraded,
	}

	now := time.Now()
	vaultRecord.ExpiresAt = now.Add(s.ttl)

	record := &models.EvidenceRecord{
		ID:              uuid.New().String(),
		TransactionID:   event.TransactionID,
		IdempotencyKey:  event.IdempotencyKey,
		AccountHash:     s.vault.HashEntity(event.Subscriber.UserID),
		CardHash:        s.vault.HashEntity(event.CardToken),
		DeviceHash:      s.vault.HashEntity(event.Device.DeviceID),
		Decision:        decision.Action,
		Score:           decision.Scores.Risk,
		PolicyVersion:   decision.PolicyVersion,
		PolicyVersionID: decision.PolicyVersionID,
		Features:        featuresJSON,
		Reasons:         models.JSONB{"reasons": json.RawMessage(reasonsJSON)},
		VaultRef:        vaultRecord.Ref,
		ProcessingTimeMs: decision.ProcessingTimeMs,
		CapturedAt:      now,
		ExpiresAt:       now.Add(s.ttl),
	}

	duplicate := false
	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO vault_records (ref, nonce, ciphertext, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)`,
			vaultRecord.Ref, vaultRecord.Nonce, vaultRecord.Ciphertext, vaultRecord.CreatedAt, vaultRecord.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert vault record: %w", err)
		}

		featuresBytes, _ := record.Features.Value()
		reasonsBytes, _ := record.Reasons.Value()
		tag, err := tx.Exec(ctx, `
			INSERT INTO evidence_records (
				id, transaction_id, idempotency_key, account_hash, card_hash, device_hash,
				decision, score, policy_version, policy_version_id, features, reasons, vault_ref,
				processing_time_ms, captured_at, expires_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			record.ID, record.TransactionID, record.IdempotencyKey, record.AccountHash, record.CardHash, record.DeviceHash,
			record.Decision, record.Score, record.PolicyVersion, record.PolicyVersionID, featuresBytes, reasonsBytes, record.VaultRef,
			record.ProcessingTimeMs, record.CapturedAt, record.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert evidence record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Roll back the vault row too: the existing evidence row keeps its own.
			duplicate = true
			return fmt.Errorf("duplicate idempotency key %q", record.IdempotencyKey)
		}
		return nil
	})
	if duplicate {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// RecordChargeback stores an inbound chargeback/refund label against its
// transaction, for friendly-fraud feature recomputation and offline
// replay. Status starts RECEIVED, per §4.8.
func (s *Store) RecordChargeback(ctx context.Context, cb *models.ChargebackEvent) error {
	if cb.Status == "" {
		cb.Status = "RECEIVED"
	}
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO chargeback_events (
			transaction_id, chargeback_id, account_id, kind, amount_cents,
			reason_code, reason_description, fraud_type, status, reported_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		cb.TransactionID, cb.ChargebackID, cb.AccountID, cb.Kind, cb.AmountCents,
		cb.ReasonCode, cb.ReasonDescription, cb.FraudType, cb.Status, cb.ReportedAt)
	if err != nil {
		return fmt.Errorf("insert chargeback event: %w", err)
	}
	return nil
}

// Purge deletes evidence (and orphaned vault) rows past their retention
// TTL, the Go equivalent of the original implementation's vault purge
// script, run periodically rather than invoked ad hoc.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM vault_records WHERE ref IN (
				SELECT vault_ref FROM evidence_records WHERE expires_at < $1
			)`, now)
		if err != nil {
			return fmt.Errorf("purge vault records: %w", err)
		}
		_ = tag

		tag, err = tx.Exec(ctx, `DELETE FROM evidence_records WHERE expires_at < $1`, now)
		if err != nil {
			return fmt.Errorf("purge evidence records: %w", err)
		}
		purged = tag.RowsAffected()
		return nil
	})
	return purged, err
}
