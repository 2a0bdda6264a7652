package usecase

import (
	"context"
	"errors"
	"time"

	"esignd/internal/domain"
	"esignd/internal/infra/crypto"
)

// DocumentVerifier answers "was this exact content signed". A hash mismatch
// is a negative result, not an error; errors are reserved for infrastructure
// failures.
type DocumentVerifier struct {
	Signatures   SignatureRepository
	Certificates CertificateRepository
	Audit        AuditRepository
	Crypto       *crypto.Service
	Now          func() time.Time
}

func (v *DocumentVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify recomputes the hash of content and checks it against the signed
// record. With a certificate payload the stored certificate is the anchor
// and the payload's embedded fields are cross-checked; without one the
// lookup goes by hash alone.
func (v *DocumentVerifier) Verify(ctx context.Context, content []byte, payload *domain.CertificatePayload, origin domain.Origin) (domain.VerificationResult, error) {
	hash := v.Crypto.HashDocument(content)
	if payload != nil {
		return v.verifyWithCertificate(ctx, hash, payload, origin)
	}
	return v.verifyByLookup(ctx, hash, origin)
}

func (v *DocumentVerifier) verifyByLookup(ctx context.Context, hash string, origin domain.Origin) (domain.VerificationResult, error) {
	sig, err := v.Signatures.LatestSignedByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerificationResult{
				Valid:  false,
				Reason: "no signed record matches this content",
				Method: domain.VerifyMethodLookup,
			}, nil
		}
		return domain.VerificationResult{}, err
	}
	res := domain.VerificationResult{
		Valid:  true,
		Method: domain.VerifyMethodLookup,
		Details: map[string]any{
			"signature_id":  sig.ID,
			"document_id":   sig.DocumentID,
			"document_hash": sig.DocumentHash,
			"signer_name":   signerNameOf(sig),
		},
	}
	if sig.SignedAt != nil {
		res.Details["signed_at"] = sig.SignedAt.UTC().Format(time.RFC3339)
	}
	if sig.CertificateID != "" {
		res.Details["certificate_id"] = sig.CertificateID
	}
	if err := v.auditVerified(ctx, sig.ID, domain.VerifyMethodLookup, origin); err != nil {
		return domain.VerificationResult{}, err
	}
	return res, nil
}

func (v *DocumentVerifier) verifyWithCertificate(ctx context.Context, hash string, payload *domain.CertificatePayload, origin domain.Origin) (domain.VerificationResult, error) {
	cert, err := v.Certificates.GetByID(ctx, payload.CertificateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerificationResult{
				Valid:  false,
				Reason: "certificate not found",
				Method: domain.VerifyMethodCertificate,
			}, nil
		}
		return domain.VerificationResult{}, err
	}
	if cert.DocumentHash != hash {
		return domain.VerificationResult{
			Valid:  false,
			Reason: "content hash does not match the signed document",
			Method: domain.VerifyMethodCertificate,
			Details: map[string]any{
				"expected_hash": cert.DocumentHash,
				"computed_hash": hash,
			},
		}, nil
	}
	// The payload travels out of band (QR code); its embedded fields must
	// agree with the stored record.
	if payload.DocumentHash != "" && payload.DocumentHash != cert.DocumentHash {
		return domain.VerificationResult{
			Valid:  false,
			Reason: "certificate payload hash does not match the stored record",
			Method: domain.VerifyMethodCertificate,
		}, nil
	}
	if payload.SignatureID != "" && payload.SignatureID != cert.SignatureID {
		return domain.VerificationResult{
			Valid:  false,
			Reason: "certificate payload does not match the stored record",
			Method: domain.VerifyMethodCertificate,
		}, nil
	}
	if payload.SignerName != "" && payload.SignerName != cert.SignerName {
		return domain.VerificationResult{
			Valid:  false,
			Reason: "certificate payload signer does not match the stored record",
			Method: domain.VerifyMethodCertificate,
		}, nil
	}

	if err := v.auditVerified(ctx, cert.SignatureID, domain.VerifyMethodCertificate, origin); err != nil {
		return domain.VerificationResult{}, err
	}
	return domain.VerificationResult{
		Valid:  true,
		Method: domain.VerifyMethodCertificate,
		Details: map[string]any{
			"certificate_id": cert.ID,
			"signature_id":   cert.SignatureID,
			"document_id":    cert.DocumentID,
			"document_hash":  cert.DocumentHash,
			"signer_name":    cert.SignerName,
			"issued_at":      cert.IssuedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (v *DocumentVerifier) auditVerified(ctx context.Context, signatureID, method string, origin domain.Origin) error {
	_, err := v.Audit.Append(ctx, domain.AuditEntry{
		SignatureID: signatureID,
		EventType:   domain.AuditEventSignatureVerified,
		Payload:     map[string]any{"method": method},
		OriginIP:    origin.IP,
		OriginAgent: origin.UserAgent,
		CreatedAt:   v.now(),
	})
	return err
}

func signerNameOf(sig *domain.Signature) string {
	if sig.VerifiedName != "" {
		return sig.VerifiedName
	}
	return sig.SignerName
}
