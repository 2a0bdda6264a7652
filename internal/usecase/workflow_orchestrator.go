package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"esignd/internal/domain"

	"github.com/google/uuid"
)

// WorkflowOrchestrator coordinates multi-party signing over one document.
// It owns the signing-order rules and delegates each individual signature
// attempt to the engine.
type WorkflowOrchestrator struct {
	Workflows  WorkflowRepository
	Signatures SignatureRepository
	Audit      AuditRepository
	Documents  DocumentStore
	Engine     *SignatureEngine
	Notifier   NotificationGateway
	Now        func() time.Time
}

type SignatoryInput struct {
	Name  string
	Email string
	Phone string
	Role  string
}

type CreateWorkflowRequest struct {
	DocumentID      string
	CreatedBy       string
	SigningOrder    string
	ReminderEnabled bool
	Signatories     []SignatoryInput
}

func (o *WorkflowOrchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Create validates the signatory list and persists the workflow. Order
// indices are assigned densely in list order.
func (o *WorkflowOrchestrator) Create(ctx context.Context, req CreateWorkflowRequest) (*domain.WorkflowSnapshot, error) {
	order := domain.SigningOrder(req.SigningOrder)
	if order == "" {
		order = domain.SigningOrderParallel
	}
	if order != domain.SigningOrderParallel && order != domain.SigningOrderSequential {
		return nil, domain.ErrInvalidOrderPolicy
	}
	if len(req.Signatories) == 0 {
		return nil, domain.ErrEmptySignatories
	}
	seen := make(map[string]bool, len(req.Signatories))
	for _, s := range req.Signatories {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, domain.ErrInvalidEmail
		}
		if seen[email] {
			return nil, domain.ErrDuplicateEmail
		}
		seen[email] = true
	}
	if _, err := o.Documents.Get(ctx, req.DocumentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}

	now := o.now()
	wf := domain.Workflow{
		ID:              uuid.NewString(),
		DocumentID:      req.DocumentID,
		CreatedBy:       req.CreatedBy,
		SigningOrder:    order,
		ReminderEnabled: req.ReminderEnabled,
		Status:          domain.WorkflowStatusInProgress,
		CreatedAt:       now,
	}
	signatories := make([]domain.Signatory, 0, len(req.Signatories))
	for i, s := range req.Signatories {
		signatories = append(signatories, domain.Signatory{
			ID:         uuid.NewString(),
			WorkflowID: wf.ID,
			Name:       s.Name,
			Email:      strings.ToLower(strings.TrimSpace(s.Email)),
			Phone:      s.Phone,
			Role:       s.Role,
			OrderIndex: i + 1,
			CreatedAt:  now,
		})
	}
	if err := o.Workflows.Create(ctx, wf, signatories); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return o.Status(ctx, wf.ID)
}

// RequestSignature starts a signature attempt for one signatory. The
// signing-order check and the attempt creation run under the workflow lock
// so two concurrent requests cannot both pass a sequential gate.
func (o *WorkflowOrchestrator) RequestSignature(ctx context.Context, workflowID, signatoryID, identifier string, origin domain.Origin) (InitiateResponse, error) {
	var resp InitiateResponse
	err := o.Workflows.WithWorkflowLock(ctx, workflowID, func(ctx context.Context) error {
		wf, err := o.Workflows.GetByID(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf.Status == domain.WorkflowStatusCompleted {
			return domain.ErrWorkflowCompleted
		}
		target, err := o.Workflows.GetSignatory(ctx, workflowID, signatoryID)
		if err != nil {
			return err
		}

		signatories, err := o.Workflows.ListSignatories(ctx, workflowID)
		if err != nil {
			return err
		}
		statuses, err := o.latestStatuses(ctx, signatories)
		if err != nil {
			return err
		}

		if cur, ok := statuses[target.ID]; ok {
			switch cur.Status {
			case domain.SignatureStatusSigned:
				return domain.ErrAlreadySigned
			case domain.SignatureStatusPending, domain.SignatureStatusOTPSent, domain.SignatureStatusVerified:
				// A live attempt blocks a new one unless it has timed out.
				if expired, err := o.Engine.expireIfDue(ctx, cur, origin); err != nil {
					return err
				} else if !expired {
					return domain.ErrInvalidState
				}
			}
		}

		if wf.SigningOrder == domain.SigningOrderSequential {
			for _, s := range signatories {
				if s.OrderIndex >= target.OrderIndex {
					continue
				}
				prior, ok := statuses[s.ID]
				if !ok || prior.Status != domain.SignatureStatusSigned {
					return domain.ErrOutOfOrder
				}
			}
		}

		resp, err = o.Engine.Initiate(ctx, InitiateRequest{
			DocumentID:  wf.DocumentID,
			SignatoryID: target.ID,
			Identifier:  identifier,
			Signer: domain.SignerDetails{
				Name:  target.Name,
				Email: target.Email,
				Phone: target.Phone,
			},
			Origin: origin,
		})
		if err != nil {
			return err
		}
		return o.Workflows.SetSignatorySignature(ctx, target.ID, resp.SignatureID)
	})
	if err != nil {
		return InitiateResponse{}, err
	}
	return resp, nil
}

// Status aggregates the workflow with the latest signature status of every
// signatory, completing the workflow when all have signed.
func (o *WorkflowOrchestrator) Status(ctx context.Context, workflowID string) (*domain.WorkflowSnapshot, error) {
	wf, err := o.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	signatories, err := o.Workflows.ListSignatories(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	sort.Slice(signatories, func(i, j int) bool {
		return signatories[i].OrderIndex < signatories[j].OrderIndex
	})
	statuses, err := o.latestStatuses(ctx, signatories)
	if err != nil {
		return nil, err
	}

	snap := domain.WorkflowSnapshot{Workflow: *wf}
	snap.Progress.Total = len(signatories)
	for _, s := range signatories {
		st := domain.SignatoryStatus{Signatory: s, Status: domain.SignatureStatusPending}
		if sig, ok := statuses[s.ID]; ok {
			st.Status = sig.Status
			st.SignedAt = sig.SignedAt
		}
		if st.Status == domain.SignatureStatusSigned {
			snap.Progress.Signed++
		} else {
			snap.Progress.Pending++
		}
		snap.Signatories = append(snap.Signatories, st)
	}

	if wf.Status == domain.WorkflowStatusInProgress && snap.Progress.Total > 0 && snap.Progress.Signed == snap.Progress.Total {
		now := o.now()
		if err := o.Workflows.MarkCompleted(ctx, wf.ID, now); err != nil {
			return nil, err
		}
		snap.Workflow.Status = domain.WorkflowStatusCompleted
		snap.Workflow.CompletedAt = &now
	}
	return &snap, nil
}

// SendReminders dispatches a reminder to every signatory who has not signed
// yet. Returns the number of reminders actually sent.
func (o *WorkflowOrchestrator) SendReminders(ctx context.Context, workflowID string, origin domain.Origin) (int, error) {
	wf, err := o.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	if !wf.ReminderEnabled || wf.Status == domain.WorkflowStatusCompleted {
		return 0, nil
	}
	doc, err := o.Documents.Get(ctx, wf.DocumentID)
	if err != nil {
		return 0, err
	}
	signatories, err := o.Workflows.ListSignatories(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	statuses, err := o.latestStatuses(ctx, signatories)
	if err != nil {
		return 0, err
	}

	sent := 0
	now := o.now()
	for _, s := range signatories {
		sig := statuses[s.ID]
		if sig != nil {
			if _, err := o.Engine.expireIfDue(ctx, sig, origin); err != nil {
				return sent, err
			}
			// Only signatories with a live or never-started attempt are
			// reminded. Signed is done; failed and expired are terminal.
			if sig.Status.Terminal() {
				continue
			}
		}
		if err := o.Notifier.SendReminder(s.Email, wf.ID, doc.Name); err != nil {
			continue
		}
		sent++
		if err := o.Workflows.SetSignatoryReminded(ctx, s.ID, now); err != nil {
			return sent, err
		}
		if sig != nil {
			_, err := o.Audit.Append(ctx, domain.AuditEntry{
				SignatureID: sig.ID,
				EventType:   domain.AuditEventReminderSent,
				Payload:     map[string]any{"workflow_id": wf.ID, "signatory_id": s.ID},
				OriginIP:    origin.IP,
				OriginAgent: origin.UserAgent,
				CreatedAt:   now,
			})
			if err != nil {
				return sent, err
			}
		}
	}
	return sent, nil
}

// AddSignatory appends a participant at the end of the signing order.
func (o *WorkflowOrchestrator) AddSignatory(ctx context.Context, workflowID string, in SignatoryInput) (*domain.Signatory, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	var added *domain.Signatory
	err := o.Workflows.WithWorkflowLock(ctx, workflowID, func(ctx context.Context) error {
		wf, err := o.Workflows.GetByID(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf.Status == domain.WorkflowStatusCompleted {
			return domain.ErrWorkflowCompleted
		}
		signatories, err := o.Workflows.ListSignatories(ctx, workflowID)
		if err != nil {
			return err
		}
		maxIdx := 0
		for _, s := range signatories {
			if s.Email == email {
				return domain.ErrDuplicateEmail
			}
			if s.OrderIndex > maxIdx {
				maxIdx = s.OrderIndex
			}
		}
		added, err = o.Workflows.AddSignatory(ctx, domain.Signatory{
			ID:         uuid.NewString(),
			WorkflowID: wf.ID,
			Name:       in.Name,
			Email:      email,
			Phone:      in.Phone,
			Role:       in.Role,
			OrderIndex: maxIdx + 1,
			CreatedAt:  o.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveSignatory detaches a participant who has not signed. Remaining order
// indices are left as-is; sequential checks compare positions, not density.
func (o *WorkflowOrchestrator) RemoveSignatory(ctx context.Context, workflowID, signatoryID string, origin domain.Origin) error {
	return o.Workflows.WithWorkflowLock(ctx, workflowID, func(ctx context.Context) error {
		wf, err := o.Workflows.GetByID(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf.Status == domain.WorkflowStatusCompleted {
			return domain.ErrWorkflowCompleted
		}
		target, err := o.Workflows.GetSignatory(ctx, workflowID, signatoryID)
		if err != nil {
			return err
		}
		if target.SignatureID != "" {
			sig, err := o.Signatures.GetByID(ctx, target.SignatureID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if sig != nil && sig.Status == domain.SignatureStatusSigned {
				return domain.ErrSignatorySigned
			}
			if sig != nil {
				_, err := o.Audit.Append(ctx, domain.AuditEntry{
					SignatureID: sig.ID,
					EventType:   domain.AuditEventSignatoryRemoved,
					Payload:     map[string]any{"workflow_id": wf.ID, "signatory_id": target.ID},
					OriginIP:    origin.IP,
					OriginAgent: origin.UserAgent,
					CreatedAt:   o.now(),
				})
				if err != nil {
					return err
				}
			}
		}
		return o.Workflows.RemoveSignatory(ctx, workflowID, signatoryID)
	})
}

func (o *WorkflowOrchestrator) latestStatuses(ctx context.Context, signatories []domain.Signatory) (map[string]*domain.Signature, error) {
	out := make(map[string]*domain.Signature, len(signatories))
	for _, s := range signatories {
		if s.SignatureID == "" {
			continue
		}
		sig, err := o.Signatures.GetByID(ctx, s.SignatureID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[s.ID] = sig
	}
	return out, nil
}
