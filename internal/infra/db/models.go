package db

import "time"

type DocumentModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"index;not null"`
	Name      string    `gorm:"not null"`
	MediaType string    `gorm:"not null"`
	Content   []byte    `gorm:"type:bytea;not null"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type DocumentVersionModel struct {
	ID         int64     `gorm:"primaryKey"`
	DocumentID string    `gorm:"type:uuid;index:idx_document_versions_doc_ver,unique;not null"`
	Version    int64     `gorm:"index:idx_document_versions_doc_ver,unique;not null"`
	Content    []byte    `gorm:"type:bytea;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type SignatureModel struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	DocumentID      string `gorm:"type:uuid;index;not null"`
	SignatoryID     *string
	SignerName      string `gorm:"not null"`
	SignerEmail     string
	SignerPhone     string
	IdentifierHash  string `gorm:"index;not null"`
	IdentifierLast4 string `gorm:"not null"`
	Status          string `gorm:"index;not null"`
	TransactionID   string `gorm:"uniqueIndex;not null"`
	CodeIssuedAt    *time.Time
	CodeExpiresAt   *time.Time `gorm:"index"`
	Attempts        int       `gorm:"not null;default:0"`
	VerifiedName    string
	SignedAt        *time.Time
	SignedVersion   int64
	DocumentHash    string `gorm:"index"`
	CertificateID   string
	ErrorMessage    string
	CreatedAt       time.Time `gorm:"not null"`
}

type WorkflowModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	DocumentID      string    `gorm:"type:uuid;index;not null"`
	CreatedBy       string    `gorm:"not null"`
	SigningOrder    string    `gorm:"not null"`
	ReminderEnabled bool      `gorm:"not null"`
	Status          string    `gorm:"index;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	CompletedAt     *time.Time
}

type SignatoryModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	WorkflowID     string `gorm:"type:uuid;index;not null"`
	Name           string `gorm:"not null"`
	Email          string `gorm:"index;not null"`
	Phone          string
	Role           string
	OrderIndex     int `gorm:"not null"`
	SignatureID    *string
	LastReminderAt *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

type SignatureAuditEntryModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	SignatureID   string         `gorm:"type:uuid;index:idx_signature_audit_sig_seq,unique;not null"`
	Seq           int64          `gorm:"index:idx_signature_audit_sig_seq,unique;not null"`
	EventType     string         `gorm:"index;not null"`
	PayloadJSON   []byte         `gorm:"type:jsonb;not null"`
	PayloadHash   string         `gorm:"not null"`
	OriginIP      *string
	OriginAgent   *string
	PrevEntryHash string    `gorm:"not null"`
	EntryHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

type SignatureAuditSeqModel struct {
	SignatureID string `gorm:"type:uuid;primaryKey"`
	Seq         int64  `gorm:"not null"`
}

type SignatureCertificateModel struct {
	ID              string    `gorm:"primaryKey"`
	SignatureID     string    `gorm:"type:uuid;uniqueIndex;not null"`
	Issuer          string    `gorm:"not null"`
	DocumentID      string    `gorm:"type:uuid;index;not null"`
	DocumentName    string    `gorm:"not null"`
	DocumentHash    string    `gorm:"index;not null"`
	SignerName      string    `gorm:"not null"`
	IssuedAt        time.Time `gorm:"not null"`
	VerificationURL string    `gorm:"not null"`
}

func (DocumentModel) TableName() string             { return "documents" }
func (DocumentVersionModel) TableName() string      { return "document_versions" }
func (SignatureModel) TableName() string            { return "signatures" }
func (WorkflowModel) TableName() string             { return "signature_workflows" }
func (SignatoryModel) TableName() string            { return "signatories" }
func (SignatureAuditEntryModel) TableName() string  { return "signature_audit_entries" }
func (SignatureAuditSeqModel) TableName() string    { return "signature_audit_seq" }
func (SignatureCertificateModel) TableName() string { return "signature_certificates" }
