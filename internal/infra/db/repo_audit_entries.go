package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"esignd/internal/domain"
	cryptoinfra "esignd/internal/infra/crypto"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEntryRepository struct {
	db *gorm.DB
}

func NewAuditEntryRepository(db *gorm.DB) *AuditEntryRepository {
	return &AuditEntryRepository{db: db}
}

// Append assigns the next seq for the signature under a row lock, links the
// entry to its predecessor's hash and inserts it. The chain is dense from 1
// and anchored at the genesis hash of the signature id.
func (r *AuditEntryRepository) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if r.db == nil {
		return domain.AuditEntry{}, errDBUnavailable
	}
	if entry.SignatureID == "" {
		return domain.AuditEntry{}, errors.New("signature_id is required")
	}
	if entry.EventType == "" {
		return domain.AuditEntry{}, errors.New("event_type is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}

	payloadJSON, payloadHash, err := cryptoinfra.HashPayload(entry.Payload)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry.PayloadHash = payloadHash

	var out domain.AuditEntry
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx, entry.SignatureID)
		if err != nil {
			return err
		}
		entry.Seq = seq
		entry.PrevEntryHash = prevHash

		entryHash, err := cryptoinfra.HashAuditEntry(entry)
		if err != nil {
			return err
		}
		entry.EntryHash = entryHash

		model := auditEntryModelFromDomain(entry, payloadJSON)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return out, nil
}

func (r *AuditEntryRepository) List(ctx context.Context, signatureID string, limit, offset int) ([]domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).
		Where("signature_id = ?", signatureID).
		Order("seq ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []SignatureAuditEntryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEntry, 0, len(models))
	for _, model := range models {
		entry, err := auditEntryFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *AuditEntryRepository) Count(ctx context.Context, signatureID string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var n int64
	err := r.db.WithContext(ctx).
		Model(&SignatureAuditEntryModel{}).
		Where("signature_id = ?", signatureID).
		Count(&n).Error
	return n, err
}

func nextAuditSeq(ctx context.Context, tx *gorm.DB, signatureID string) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO signature_audit_seq (signature_id, seq) VALUES (?, 0) ON CONFLICT (signature_id) DO NOTHING",
		signatureID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM signature_audit_seq WHERE signature_id = ? FOR UPDATE",
		signatureID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE signature_audit_seq SET seq = ? WHERE signature_id = ?",
		nextSeq,
		signatureID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := cryptoinfra.GenesisHash(signatureID)
	if currentSeq > 0 {
		var prev SignatureAuditEntryModel
		if err := tx.WithContext(ctx).
			Where("signature_id = ? AND seq = ?", signatureID, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EntryHash
	}
	return nextSeq, prevHash, nil
}

func auditEntryModelFromDomain(entry domain.AuditEntry, payloadJSON []byte) SignatureAuditEntryModel {
	return SignatureAuditEntryModel{
		ID:            entry.ID,
		SignatureID:   entry.SignatureID,
		Seq:           entry.Seq,
		EventType:     string(entry.EventType),
		PayloadJSON:   payloadJSON,
		PayloadHash:   entry.PayloadHash,
		OriginIP:      stringPtrIfNotEmpty(entry.OriginIP),
		OriginAgent:   stringPtrIfNotEmpty(entry.OriginAgent),
		PrevEntryHash: entry.PrevEntryHash,
		EntryHash:     entry.EntryHash,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
}

func auditEntryFromModel(model SignatureAuditEntryModel) (domain.AuditEntry, error) {
	var payload map[string]any
	if len(model.PayloadJSON) > 0 {
		if err := json.Unmarshal(model.PayloadJSON, &payload); err != nil {
			return domain.AuditEntry{}, err
		}
	}
	return domain.AuditEntry{
		ID:            model.ID,
		SignatureID:   model.SignatureID,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		Payload:       payload,
		PayloadHash:   model.PayloadHash,
		OriginIP:      stringValue(model.OriginIP),
		OriginAgent:   stringValue(model.OriginAgent),
		PrevEntryHash: model.PrevEntryHash,
		EntryHash:     model.EntryHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}
