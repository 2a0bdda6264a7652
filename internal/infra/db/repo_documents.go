package db

import (
	"context"
	"errors"
	"time"

	"esignd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := documentModelFromDomain(doc)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *DocumentRepository) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DocumentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", documentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return documentFromModel(model), nil
}

func (r *DocumentRepository) UpdateContent(ctx context.Context, documentID string, content []byte, now time.Time) (*domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var out *domain.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DocumentModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", documentID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		model.Content = copyBytes(content)
		model.Version++
		model.UpdatedAt = now.UTC()
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		out = documentFromModel(model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetBytesAsOf returns the content snapshotted at version, falling back to
// the live row when no snapshot exists and the live version still matches.
func (r *DocumentRepository) GetBytesAsOf(ctx context.Context, documentID string, version int64) ([]byte, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var snap DocumentVersionModel
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND version = ?", documentID, version).
		First(&snap).Error
	if err == nil {
		return copyBytes(snap.Content), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var model DocumentModel
	err = r.db.WithContext(ctx).First(&model, "id = ?", documentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if model.Version != version {
		return nil, domain.ErrNotFound
	}
	return copyBytes(model.Content), nil
}

// SnapshotVersion pins the content of one version. Re-snapshotting the same
// version is a no-op.
func (r *DocumentRepository) SnapshotVersion(ctx context.Context, documentID string, version int64, content []byte) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := DocumentVersionModel{
		DocumentID: documentID,
		Version:    version,
		Content:    copyBytes(content),
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func documentModelFromDomain(doc domain.Document) DocumentModel {
	return DocumentModel{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		Name:      doc.Name,
		MediaType: doc.MediaType,
		Content:   copyBytes(doc.Content),
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

func documentFromModel(model DocumentModel) *domain.Document {
	return &domain.Document{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Name:      model.Name,
		MediaType: model.MediaType,
		Content:   copyBytes(model.Content),
		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
