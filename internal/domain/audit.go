package domain

import "time"

const AuditChainVersion = "signature_audit_v1"

type AuditEventType string

const (
	AuditEventSignatureInitiated AuditEventType = "signature_initiated"
	AuditEventOTPRequested       AuditEventType = "otp_requested"
	AuditEventOTPVerified        AuditEventType = "otp_verified"
	AuditEventOTPFailed          AuditEventType = "otp_failed"
	AuditEventDocumentSigned     AuditEventType = "document_signed"
	AuditEventSignatureFailed    AuditEventType = "signature_failed"
	AuditEventSignatureExpired   AuditEventType = "signature_expired"
	AuditEventDocumentDownloaded AuditEventType = "document_downloaded"
	AuditEventCertificateIssued  AuditEventType = "certificate_issued"
	AuditEventSignatureVerified  AuditEventType = "signature_verified"
	AuditEventReminderSent       AuditEventType = "reminder_sent"
	AuditEventSignatoryRemoved   AuditEventType = "signatory_removed"
)

// AuditEntry is one immutable record in a signature's event history. Entries
// form a per-signature hash chain: Seq is dense from 1 and EntryHash covers
// PrevEntryHash, so any edit or deletion breaks the chain.
type AuditEntry struct {
	ID            string
	SignatureID   string
	Seq           int64
	EventType     AuditEventType
	Payload       map[string]any
	PayloadHash   string
	OriginIP      string
	OriginAgent   string
	PrevEntryHash string
	EntryHash     string
	CreatedAt     time.Time
}
