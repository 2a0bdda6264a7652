package domain

import "time"

// Certificate is the externally presentable proof of a completed signature.
// Created exactly once when the signature reaches signed, then immutable.
type Certificate struct {
	ID              string
	SignatureID     string
	Issuer          string
	DocumentID      string
	DocumentName    string
	DocumentHash    string
	SignerName      string
	IssuedAt        time.Time
	VerificationURL string
}

// CertificatePayload is the out-of-band form of a certificate (the QR code
// contents). Verification cross-checks its embedded fields against the
// stored record.
type CertificatePayload struct {
	CertificateID string `json:"certificate_id"`
	SignatureID   string `json:"signature_id"`
	DocumentID    string `json:"document_id"`
	DocumentName  string `json:"document_name"`
	DocumentHash  string `json:"document_hash"`
	SignerName    string `json:"signer_name"`
	SignedAt      string `json:"signed_at"`
	VerifyURL     string `json:"verify_url"`
}

type VerificationResult struct {
	Valid   bool
	Reason  string
	Method  string
	Details map[string]any
}

const (
	VerifyMethodLookup      = "record_lookup"
	VerifyMethodCertificate = "certificate_payload"
)
