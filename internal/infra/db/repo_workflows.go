package db

import (
	"context"
	"errors"
	"time"

	"esignd/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf domain.Workflow, signatories []domain.Signatory) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := workflowModelFromDomain(wf)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, s := range signatories {
			sm := signatoryModelFromDomain(s)
			if err := tx.Create(&sm).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model WorkflowModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return workflowFromModel(model), nil
}

func (r *WorkflowRepository) ListSignatories(ctx context.Context, workflowID string) ([]domain.Signatory, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []SignatoryModel
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("order_index ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Signatory, 0, len(models))
	for _, model := range models {
		out = append(out, *signatoryFromModel(model))
	}
	return out, nil
}

func (r *WorkflowRepository) GetSignatory(ctx context.Context, workflowID, signatoryID string) (*domain.Signatory, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatoryModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND workflow_id = ?", signatoryID, workflowID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return signatoryFromModel(model), nil
}

func (r *WorkflowRepository) AddSignatory(ctx context.Context, s domain.Signatory) (*domain.Signatory, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	model := signatoryModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, err
	}
	return signatoryFromModel(model), nil
}

func (r *WorkflowRepository) RemoveSignatory(ctx context.Context, workflowID, signatoryID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Where("id = ? AND workflow_id = ?", signatoryID, workflowID).
		Delete(&SignatoryModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) SetSignatorySignature(ctx context.Context, signatoryID, signatureID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&SignatoryModel{}).
		Where("id = ?", signatoryID).
		Update("signature_id", signatureID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) SetSignatoryReminded(ctx context.Context, signatoryID string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&SignatoryModel{}).
		Where("id = ?", signatoryID).
		Update("last_reminder_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) MarkCompleted(ctx context.Context, workflowID string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&WorkflowModel{}).
		Where("id = ? AND status = ?", workflowID, string(domain.WorkflowStatusInProgress)).
		Updates(map[string]any{
			"status":       string(domain.WorkflowStatusCompleted),
			"completed_at": at.UTC(),
		}).Error
}

// WithWorkflowLock runs fn inside a transaction that holds a row lock on the
// workflow. Sequential-order checks and attempt creation run under it so two
// concurrent requests cannot both pass the same gate.
func (r *WorkflowRepository) WithWorkflowLock(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model WorkflowModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", workflowID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		return fn(ctx)
	})
}

func workflowModelFromDomain(wf domain.Workflow) WorkflowModel {
	return WorkflowModel{
		ID:              wf.ID,
		DocumentID:      wf.DocumentID,
		CreatedBy:       wf.CreatedBy,
		SigningOrder:    string(wf.SigningOrder),
		ReminderEnabled: wf.ReminderEnabled,
		Status:          string(wf.Status),
		CreatedAt:       wf.CreatedAt.UTC(),
		CompletedAt:     wf.CompletedAt,
	}
}

func workflowFromModel(model WorkflowModel) *domain.Workflow {
	return &domain.Workflow{
		ID:              model.ID,
		DocumentID:      model.DocumentID,
		CreatedBy:       model.CreatedBy,
		SigningOrder:    domain.SigningOrder(model.SigningOrder),
		ReminderEnabled: model.ReminderEnabled,
		Status:          domain.WorkflowStatus(model.Status),
		CreatedAt:       model.CreatedAt,
		CompletedAt:     model.CompletedAt,
	}
}

func signatoryModelFromDomain(s domain.Signatory) SignatoryModel {
	return SignatoryModel{
		ID:             s.ID,
		WorkflowID:     s.WorkflowID,
		Name:           s.Name,
		Email:          s.Email,
		Phone:          s.Phone,
		Role:           s.Role,
		OrderIndex:     s.OrderIndex,
		SignatureID:    stringPtrIfNotEmpty(s.SignatureID),
		LastReminderAt: s.LastReminderAt,
		CreatedAt:      s.CreatedAt.UTC(),
	}
}

func signatoryFromModel(model SignatoryModel) *domain.Signatory {
	return &domain.Signatory{
		ID:             model.ID,
		WorkflowID:     model.WorkflowID,
		Name:           model.Name,
		Email:          model.Email,
		Phone:          model.Phone,
		Role:           model.Role,
		OrderIndex:     model.OrderIndex,
		SignatureID:    stringValue(model.SignatureID),
		LastReminderAt: model.LastReminderAt,
		CreatedAt:      model.CreatedAt,
	}
}
