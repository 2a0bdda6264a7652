package domain

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidCode        = errors.New("invalid code")
	ErrCodeExpired        = errors.New("code expired")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrAlreadySigned      = errors.New("already signed")
	ErrOutOfOrder         = errors.New("signing order violation")
	ErrDuplicateEmail     = errors.New("duplicate signatory email")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrEmptySignatories   = errors.New("signatory list is empty")
	ErrEmptyDocuments     = errors.New("document list is empty")
	ErrInvalidOrderPolicy = errors.New("invalid signing order policy")
	ErrWorkflowCompleted  = errors.New("workflow already completed")
	ErrSignatorySigned    = errors.New("signatory has already signed")
)
