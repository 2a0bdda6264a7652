package domain

import "time"

type SignatureStatus string

const (
	SignatureStatusPending  SignatureStatus = "pending"
	SignatureStatusOTPSent  SignatureStatus = "otp_sent"
	SignatureStatusVerified SignatureStatus = "verified"
	SignatureStatusSigned   SignatureStatus = "signed"
	SignatureStatusFailed   SignatureStatus = "failed"
	SignatureStatusExpired  SignatureStatus = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s SignatureStatus) Terminal() bool {
	switch s {
	case SignatureStatusSigned, SignatureStatusFailed, SignatureStatusExpired:
		return true
	}
	return false
}

// Signature is one signatory's attempt to sign one document. Rows are never
// deleted; a re-attempt after expiry or failure supersedes the old row with a
// fresh one.
type Signature struct {
	ID             string
	DocumentID     string
	SignatoryID    string
	SignerName     string
	SignerEmail    string
	SignerPhone    string
	IdentifierHash string
	IdentifierLast4 string
	Status         SignatureStatus
	TransactionID  string
	CodeIssuedAt   time.Time
	CodeExpiresAt  time.Time
	Attempts       int
	VerifiedName   string
	SignedAt       *time.Time
	SignedVersion  int64
	DocumentHash   string
	CertificateID  string
	ErrorMessage   string
	CreatedAt      time.Time
}

type SignerDetails struct {
	Name  string
	Email string
	Phone string
}

// Origin is the caller network metadata attached to audit entries.
type Origin struct {
	IP        string
	UserAgent string
}
