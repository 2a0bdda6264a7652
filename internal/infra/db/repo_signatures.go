package db

import (
	"context"
	"errors"
	"time"

	"esignd/internal/domain"

	"gorm.io/gorm"
)

type SignatureRepository struct {
	db *gorm.DB
}

func NewSignatureRepository(db *gorm.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

func (r *SignatureRepository) Create(ctx context.Context, sig domain.Signature) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := signatureModelFromDomain(sig)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *SignatureRepository) GetByID(ctx context.Context, id string) (*domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatureModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return signatureFromModel(model), nil
}

func (r *SignatureRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []SignatureModel
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Signature, 0, len(models))
	for _, model := range models {
		out = append(out, *signatureFromModel(model))
	}
	return out, nil
}

func (r *SignatureRepository) LatestSignedByHash(ctx context.Context, documentHash string) (*domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatureModel
	err := r.db.WithContext(ctx).
		Where("document_hash = ? AND status = ?", documentHash, string(domain.SignatureStatusSigned)).
		Order("signed_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return signatureFromModel(model), nil
}

// Status transitions are guarded updates: the WHERE clause names the states
// the transition is legal from, and zero affected rows means the signature
// was not in one of them. Concurrent writers race on the row, not on a lock.

func (r *SignatureRepository) MarkOTPSent(ctx context.Context, id string, issuedAt, expiresAt time.Time) error {
	return r.transition(ctx, id,
		[]string{string(domain.SignatureStatusPending)},
		map[string]any{
			"status":          string(domain.SignatureStatusOTPSent),
			"code_issued_at":  issuedAt.UTC(),
			"code_expires_at": expiresAt.UTC(),
		})
}

func (r *SignatureRepository) MarkVerified(ctx context.Context, id, verifiedName string) error {
	return r.transition(ctx, id,
		[]string{string(domain.SignatureStatusOTPSent)},
		map[string]any{
			"status":        string(domain.SignatureStatusVerified),
			"verified_name": verifiedName,
		})
}

func (r *SignatureRepository) RecordFailedAttempt(ctx context.Context, id string, attempts int, message string) error {
	return r.transition(ctx, id,
		[]string{string(domain.SignatureStatusOTPSent)},
		map[string]any{
			"attempts":      attempts,
			"error_message": message,
		})
}

func (r *SignatureRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.transition(ctx, id,
		[]string{
			string(domain.SignatureStatusPending),
			string(domain.SignatureStatusOTPSent),
			string(domain.SignatureStatusVerified),
		},
		map[string]any{
			"status":        string(domain.SignatureStatusFailed),
			"error_message": message,
		})
}

func (r *SignatureRepository) MarkSigned(ctx context.Context, id string, signedAt time.Time, version int64, documentHash, certificateID string) error {
	return r.transition(ctx, id,
		[]string{string(domain.SignatureStatusVerified)},
		map[string]any{
			"status":         string(domain.SignatureStatusSigned),
			"signed_at":      signedAt.UTC(),
			"signed_version": version,
			"document_hash":  documentHash,
			"certificate_id": certificateID,
		})
}

func (r *SignatureRepository) MarkExpired(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		[]string{
			string(domain.SignatureStatusPending),
			string(domain.SignatureStatusOTPSent),
		},
		map[string]any{
			"status": string(domain.SignatureStatusExpired),
		})
}

func (r *SignatureRepository) ExpireDue(ctx context.Context, now time.Time) ([]domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var out []domain.Signature
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []SignatureModel
		if err := tx.
			Where("status IN ? AND code_expires_at IS NOT NULL AND code_expires_at < ?",
				[]string{string(domain.SignatureStatusPending), string(domain.SignatureStatusOTPSent)},
				now.UTC()).
			Find(&models).Error; err != nil {
			return err
		}
		for _, model := range models {
			res := tx.Model(&SignatureModel{}).
				Where("id = ? AND status = ?", model.ID, model.Status).
				Update("status", string(domain.SignatureStatusExpired))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			model.Status = string(domain.SignatureStatusExpired)
			out = append(out, *signatureFromModel(model))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SignatureRepository) transition(ctx context.Context, id string, from []string, updates map[string]any) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&SignatureModel{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

func signatureModelFromDomain(sig domain.Signature) SignatureModel {
	model := SignatureModel{
		ID:              sig.ID,
		DocumentID:      sig.DocumentID,
		SignatoryID:     stringPtrIfNotEmpty(sig.SignatoryID),
		SignerName:      sig.SignerName,
		SignerEmail:     sig.SignerEmail,
		SignerPhone:     sig.SignerPhone,
		IdentifierHash:  sig.IdentifierHash,
		IdentifierLast4: sig.IdentifierLast4,
		Status:          string(sig.Status),
		TransactionID:   sig.TransactionID,
		Attempts:        sig.Attempts,
		VerifiedName:    sig.VerifiedName,
		SignedAt:        sig.SignedAt,
		SignedVersion:   sig.SignedVersion,
		DocumentHash:    sig.DocumentHash,
		CertificateID:   sig.CertificateID,
		ErrorMessage:    sig.ErrorMessage,
		CreatedAt:       sig.CreatedAt.UTC(),
	}
	if !sig.CodeIssuedAt.IsZero() {
		t := sig.CodeIssuedAt.UTC()
		model.CodeIssuedAt = &t
	}
	if !sig.CodeExpiresAt.IsZero() {
		t := sig.CodeExpiresAt.UTC()
		model.CodeExpiresAt = &t
	}
	return model
}

func signatureFromModel(model SignatureModel) *domain.Signature {
	sig := &domain.Signature{
		ID:              model.ID,
		DocumentID:      model.DocumentID,
		SignatoryID:     stringValue(model.SignatoryID),
		SignerName:      model.SignerName,
		SignerEmail:     model.SignerEmail,
		SignerPhone:     model.SignerPhone,
		IdentifierHash:  model.IdentifierHash,
		IdentifierLast4: model.IdentifierLast4,
		Status:          domain.SignatureStatus(model.Status),
		TransactionID:   model.TransactionID,
		Attempts:        model.Attempts,
		VerifiedName:    model.VerifiedName,
		SignedAt:        model.SignedAt,
		SignedVersion:   model.SignedVersion,
		DocumentHash:    model.DocumentHash,
		CertificateID:   model.CertificateID,
		ErrorMessage:    model.ErrorMessage,
		CreatedAt:       model.CreatedAt,
	}
	if model.CodeIssuedAt != nil {
		sig.CodeIssuedAt = *model.CodeIssuedAt
	}
	if model.CodeExpiresAt != nil {
		sig.CodeExpiresAt = *model.CodeExpiresAt
	}
	return sig
}
