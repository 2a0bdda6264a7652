package usecase

import (
	"context"
	"time"

	"esignd/internal/domain"
)

type SignatureRepository interface {
	Create(ctx context.Context, sig domain.Signature) error
	GetByID(ctx context.Context, id string) (*domain.Signature, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.Signature, error)
	LatestSignedByHash(ctx context.Context, documentHash string) (*domain.Signature, error)

	// Guarded transitions. Each update matches on the expected current
	// status and returns domain.ErrInvalidState when zero rows change, so
	// two racing callers cannot both move the same row.
	MarkOTPSent(ctx context.Context, id string, issuedAt, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id, verifiedName string) error
	RecordFailedAttempt(ctx context.Context, id string, attempts int, message string) error
	MarkFailed(ctx context.Context, id, message string) error
	MarkSigned(ctx context.Context, id string, signedAt time.Time, version int64, documentHash, certificateID string) error
	MarkExpired(ctx context.Context, id string) error

	// ExpireDue moves every pending/otp_sent row whose challenge expiry has
	// elapsed to expired and returns the rows it transitioned.
	ExpireDue(ctx context.Context, now time.Time) ([]domain.Signature, error)
}

type WorkflowRepository interface {
	Create(ctx context.Context, wf domain.Workflow, signatories []domain.Signatory) error
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
	ListSignatories(ctx context.Context, workflowID string) ([]domain.Signatory, error)
	GetSignatory(ctx context.Context, workflowID, signatoryID string) (*domain.Signatory, error)
	AddSignatory(ctx context.Context, s domain.Signatory) (*domain.Signatory, error)
	RemoveSignatory(ctx context.Context, workflowID, signatoryID string) error
	SetSignatorySignature(ctx context.Context, signatoryID, signatureID string) error
	SetSignatoryReminded(ctx context.Context, signatoryID string, at time.Time) error
	MarkCompleted(ctx context.Context, workflowID string, at time.Time) error

	// WithWorkflowLock runs fn while holding an exclusive lock on the
	// workflow row. Sequential-order checks and the initiation they gate
	// run inside fn so concurrent requests serialize.
	WithWorkflowLock(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error
}

type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	List(ctx context.Context, signatureID string, limit, offset int) ([]domain.AuditEntry, error)
	Count(ctx context.Context, signatureID string) (int64, error)
}

type CertificateRepository interface {
	// Create is write-once per signature; a second insert for the same
	// signature is a silent no-op.
	Create(ctx context.Context, cert domain.Certificate) error
	GetByID(ctx context.Context, certificateID string) (*domain.Certificate, error)
	GetBySignature(ctx context.Context, signatureID string) (*domain.Certificate, error)
}

type DocumentStore interface {
	Get(ctx context.Context, documentID string) (*domain.Document, error)
	GetBytesAsOf(ctx context.Context, documentID string, version int64) ([]byte, error)
	SnapshotVersion(ctx context.Context, documentID string, version int64, content []byte) error
}

type ChallengeStore interface {
	Put(ctx context.Context, ch domain.Challenge) error
	Consume(ctx context.Context, transactionID, code string, maxAttempts int) (domain.ChallengeDecision, error)
}

// CodeSource matches the otp package sources.
type CodeSource interface {
	Generate() (string, error)
	Disclose() bool
}

// NotificationGateway is best-effort; failures are logged by callers and
// never block progress.
type NotificationGateway interface {
	SendCode(phone, code, transactionID string) error
	SendReminder(email, workflowID, documentName string) error
}
