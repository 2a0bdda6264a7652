package domain

import "time"

type SigningOrder string

const (
	SigningOrderParallel   SigningOrder = "parallel"
	SigningOrderSequential SigningOrder = "sequential"
)

type WorkflowStatus string

const (
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
)

// Workflow spans all signatories for one document.
type Workflow struct {
	ID              string
	DocumentID      string
	CreatedBy       string
	SigningOrder    SigningOrder
	ReminderEnabled bool
	Status          WorkflowStatus
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Signatory is a named participant inside a workflow. OrderIndex is a dense
// 1..N position consulted only under sequential order. SignatureID points at
// the latest signature attempt; superseded attempts keep their own rows.
type Signatory struct {
	ID             string
	WorkflowID     string
	Name           string
	Email          string
	Phone          string
	Role           string
	OrderIndex     int
	SignatureID    string
	LastReminderAt *time.Time
	CreatedAt      time.Time
}

// WorkflowProgress aggregates per-signatory signature statuses.
// Pending counts every signatory whose latest attempt is not signed,
// so Signed + Pending == Total always holds.
type WorkflowProgress struct {
	Total   int
	Signed  int
	Pending int
}

type WorkflowSnapshot struct {
	Workflow    Workflow
	Signatories []SignatoryStatus
	Progress    WorkflowProgress
}

type SignatoryStatus struct {
	Signatory Signatory
	Status    SignatureStatus
	SignedAt  *time.Time
}
