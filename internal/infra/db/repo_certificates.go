package db

import (
	"context"
	"errors"

	"esignd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create is write-once: a retry after a duplicate insert is a no-op rather
// than an error, so certificate issuance stays idempotent per signature.
func (r *CertificateRepository) Create(ctx context.Context, cert domain.Certificate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := certificateModelFromDomain(cert)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *CertificateRepository) GetByID(ctx context.Context, certificateID string) (*domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatureCertificateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", certificateID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return certificateFromModel(model), nil
}

func (r *CertificateRepository) GetBySignature(ctx context.Context, signatureID string) (*domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatureCertificateModel
	err := r.db.WithContext(ctx).First(&model, "signature_id = ?", signatureID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return certificateFromModel(model), nil
}

func certificateModelFromDomain(cert domain.Certificate) SignatureCertificateModel {
	return SignatureCertificateModel{
		ID:              cert.ID,
		SignatureID:     cert.SignatureID,
		Issuer:          cert.Issuer,
		DocumentID:      cert.DocumentID,
		DocumentName:    cert.DocumentName,
		DocumentHash:    cert.DocumentHash,
		SignerName:      cert.SignerName,
		IssuedAt:        cert.IssuedAt.UTC(),
		VerificationURL: cert.VerificationURL,
	}
}

func certificateFromModel(model SignatureCertificateModel) *domain.Certificate {
	return &domain.Certificate{
		ID:              model.ID,
		SignatureID:     model.SignatureID,
		Issuer:          model.Issuer,
		DocumentID:      model.DocumentID,
		DocumentName:    model.DocumentName,
		DocumentHash:    model.DocumentHash,
		SignerName:      model.SignerName,
		IssuedAt:        model.IssuedAt.UTC(),
		VerificationURL: model.VerificationURL,
	}
}
