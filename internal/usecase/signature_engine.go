package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"esignd/internal/domain"
	"esignd/internal/infra/crypto"
	"esignd/internal/infra/identity"

	"github.com/google/uuid"
)

// SignatureEngine drives one signature through
// pending -> otp_sent -> verified -> signed, with failed and expired as the
// terminal off-ramps. Every transition writes its audit entry before the
// call returns.
type SignatureEngine struct {
	Signatures   SignatureRepository
	Certificates CertificateRepository
	Audit        AuditRepository
	Documents    DocumentStore
	Identity     *IdentityVerifier
	Notifier     NotificationGateway
	Crypto       *crypto.Service
	Issuer       string
	VerifyBase   string
	Now          func() time.Time
}

type InitiateRequest struct {
	DocumentID  string
	SignatoryID string
	Identifier  string
	Signer      domain.SignerDetails
	Origin      domain.Origin
}

type InitiateResponse struct {
	SignatureID      string
	TransactionID    string
	Status           domain.SignatureStatus
	ExpiresAt        time.Time
	MaskedIdentifier string
	DemoCode         string
}

type ApplyResponse struct {
	SignatureID   string
	Status        domain.SignatureStatus
	SignedAt      time.Time
	DocumentHash  string
	CertificateID string
}

func (e *SignatureEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Initiate validates the identifier, creates the signature row and issues
// the challenge. Fails before any write when the identifier or document is
// bad.
func (e *SignatureEngine) Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error) {
	normalized, err := e.Identity.ValidateIdentifier(req.Identifier)
	if err != nil {
		return InitiateResponse{}, err
	}
	doc, err := e.Documents.Get(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return InitiateResponse{}, domain.ErrDocumentNotFound
		}
		return InitiateResponse{}, err
	}

	ch, disclose, err := e.Identity.IssueChallenge(ctx, normalized, req.Signer)
	if err != nil {
		return InitiateResponse{}, err
	}

	now := e.now()
	sig := domain.Signature{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		SignatoryID:     req.SignatoryID,
		SignerName:      req.Signer.Name,
		SignerEmail:     req.Signer.Email,
		SignerPhone:     req.Signer.Phone,
		IdentifierHash:  identity.Hash(normalized),
		IdentifierLast4: identity.Last4(normalized),
		Status:          domain.SignatureStatusPending,
		TransactionID:   ch.TransactionID,
		CodeIssuedAt:    ch.IssuedAt,
		CodeExpiresAt:   ch.ExpiresAt,
		CreatedAt:       now,
	}
	if err := e.Signatures.Create(ctx, sig); err != nil {
		return InitiateResponse{}, fmt.Errorf("create signature: %w", err)
	}
	if err := e.audit(ctx, sig.ID, domain.AuditEventSignatureInitiated, map[string]any{
		"document_id":       doc.ID,
		"transaction_id":    ch.TransactionID,
		"masked_identifier": identity.Mask(normalized),
	}, req.Origin); err != nil {
		return InitiateResponse{}, err
	}

	if err := e.Notifier.SendCode(req.Signer.Phone, ch.Code, ch.TransactionID); err != nil {
		log.Printf("engine: code dispatch failed txn=%s: %v", ch.TransactionID, err)
	}

	if err := e.Signatures.MarkOTPSent(ctx, sig.ID, ch.IssuedAt, ch.ExpiresAt); err != nil {
		return InitiateResponse{}, err
	}
	if err := e.audit(ctx, sig.ID, domain.AuditEventOTPRequested, map[string]any{
		"transaction_id": ch.TransactionID,
		"expires_at":     ch.ExpiresAt.UTC().Format(time.RFC3339),
	}, req.Origin); err != nil {
		return InitiateResponse{}, err
	}

	resp := InitiateResponse{
		SignatureID:      sig.ID,
		TransactionID:    ch.TransactionID,
		Status:           domain.SignatureStatusOTPSent,
		ExpiresAt:        ch.ExpiresAt,
		MaskedIdentifier: identity.Mask(normalized),
	}
	if disclose {
		resp.DemoCode = ch.Code
	}
	return resp, nil
}

// VerifyOTP checks the submitted code for a signature in otp_sent. A wrong
// code keeps the row in otp_sent until the attempt budget is spent.
func (e *SignatureEngine) VerifyOTP(ctx context.Context, signatureID, code string, origin domain.Origin) (*domain.Signature, error) {
	sig, err := e.Signatures.GetByID(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if expired, err := e.expireIfDue(ctx, sig, origin); err != nil {
		return nil, err
	} else if expired {
		return nil, domain.ErrCodeExpired
	}
	if sig.Status != domain.SignatureStatusOTPSent {
		if sig.Status == domain.SignatureStatusSigned {
			return nil, domain.ErrAlreadySigned
		}
		return nil, domain.ErrInvalidState
	}

	decision, err := e.Identity.CheckChallenge(ctx, sig.TransactionID, code)
	if err != nil {
		return nil, err
	}
	switch decision.Outcome {
	case domain.ChallengeOK:
		if err := e.Signatures.MarkVerified(ctx, sig.ID, decision.SignerName); err != nil {
			return nil, err
		}
		if err := e.audit(ctx, sig.ID, domain.AuditEventOTPVerified, map[string]any{
			"transaction_id": sig.TransactionID,
			"signer_name":    decision.SignerName,
		}, origin); err != nil {
			return nil, err
		}
		return e.Signatures.GetByID(ctx, sig.ID)

	case domain.ChallengeMismatch:
		if err := e.Signatures.RecordFailedAttempt(ctx, sig.ID, decision.Attempts, "invalid code"); err != nil {
			return nil, err
		}
		if err := e.audit(ctx, sig.ID, domain.AuditEventOTPFailed, map[string]any{
			"transaction_id": sig.TransactionID,
			"attempts":       decision.Attempts,
		}, origin); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCode

	case domain.ChallengeExhausted:
		if err := e.Signatures.RecordFailedAttempt(ctx, sig.ID, decision.Attempts, "otp attempts exhausted"); err != nil {
			return nil, err
		}
		if err := e.audit(ctx, sig.ID, domain.AuditEventOTPFailed, map[string]any{
			"transaction_id": sig.TransactionID,
			"attempts":       decision.Attempts,
		}, origin); err != nil {
			return nil, err
		}
		if err := e.Signatures.MarkFailed(ctx, sig.ID, "otp attempts exhausted"); err != nil {
			return nil, err
		}
		if err := e.audit(ctx, sig.ID, domain.AuditEventSignatureFailed, map[string]any{
			"reason": "otp attempts exhausted",
		}, origin); err != nil {
			return nil, err
		}
		return nil, domain.ErrTooManyAttempts

	default:
		// The challenge vanished while the row still says otp_sent: the
		// store expired it first. Converge the row.
		if err := e.Signatures.MarkExpired(ctx, sig.ID); err != nil && !errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
		if err := e.audit(ctx, sig.ID, domain.AuditEventSignatureExpired, map[string]any{
			"transaction_id": sig.TransactionID,
		}, origin); err != nil {
			return nil, err
		}
		return nil, domain.ErrCodeExpired
	}
}

// Apply computes the document hash at this instant, snapshots the version,
// issues the certificate and moves the signature to signed. Only valid from
// verified; signed rows answer ErrAlreadySigned.
func (e *SignatureEngine) Apply(ctx context.Context, signatureID string, origin domain.Origin) (ApplyResponse, error) {
	sig, err := e.Signatures.GetByID(ctx, signatureID)
	if err != nil {
		return ApplyResponse{}, err
	}
	if expired, err := e.expireIfDue(ctx, sig, origin); err != nil {
		return ApplyResponse{}, err
	} else if expired {
		return ApplyResponse{}, domain.ErrInvalidState
	}
	switch sig.Status {
	case domain.SignatureStatusSigned:
		return ApplyResponse{}, domain.ErrAlreadySigned
	case domain.SignatureStatusVerified:
	default:
		return ApplyResponse{}, domain.ErrInvalidState
	}

	doc, err := e.Documents.Get(ctx, sig.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ApplyResponse{}, domain.ErrDocumentNotFound
		}
		return ApplyResponse{}, err
	}
	hash := e.Crypto.HashDocument(doc.Content)
	if err := e.Documents.SnapshotVersion(ctx, doc.ID, doc.Version, doc.Content); err != nil {
		return ApplyResponse{}, fmt.Errorf("snapshot document: %w", err)
	}

	now := e.now()
	certID := newCertificateID(now, sig.ID)
	if err := e.Signatures.MarkSigned(ctx, sig.ID, now, doc.Version, hash, certID); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Lost the race: re-read to report the precise state.
			current, gerr := e.Signatures.GetByID(ctx, sig.ID)
			if gerr == nil && current.Status == domain.SignatureStatusSigned {
				return ApplyResponse{}, domain.ErrAlreadySigned
			}
		}
		return ApplyResponse{}, err
	}

	signerName := sig.VerifiedName
	if signerName == "" {
		signerName = sig.SignerName
	}
	cert := domain.Certificate{
		ID:              certID,
		SignatureID:     sig.ID,
		Issuer:          e.Issuer,
		DocumentID:      doc.ID,
		DocumentName:    doc.Name,
		DocumentHash:    hash,
		SignerName:      signerName,
		IssuedAt:        now,
		VerificationURL: e.VerifyBase + "?cert=" + certID,
	}
	if err := e.Certificates.Create(ctx, cert); err != nil {
		return ApplyResponse{}, fmt.Errorf("issue certificate: %w", err)
	}

	if err := e.audit(ctx, sig.ID, domain.AuditEventDocumentSigned, map[string]any{
		"document_hash":  hash,
		"signed_version": doc.Version,
		"certificate_id": certID,
	}, origin); err != nil {
		return ApplyResponse{}, err
	}
	if err := e.audit(ctx, sig.ID, domain.AuditEventCertificateIssued, map[string]any{
		"certificate_id":   certID,
		"verification_url": cert.VerificationURL,
	}, origin); err != nil {
		return ApplyResponse{}, err
	}

	return ApplyResponse{
		SignatureID:   sig.ID,
		Status:        domain.SignatureStatusSigned,
		SignedAt:      now,
		DocumentHash:  hash,
		CertificateID: certID,
	}, nil
}

type BulkInitiateResult struct {
	DocumentID string
	Response   InitiateResponse
	Err        error
}

type BulkInitiateResponse struct {
	Initiated int
	Failed    int
	Results   []BulkInitiateResult
}

// BulkInitiate starts one signature attempt per document for the same
// signer. A bad document fails its own entry; the batch itself never
// aborts.
func (e *SignatureEngine) BulkInitiate(ctx context.Context, documentIDs []string, identifier string, signer domain.SignerDetails, origin domain.Origin) (BulkInitiateResponse, error) {
	if len(documentIDs) == 0 {
		return BulkInitiateResponse{}, domain.ErrEmptyDocuments
	}
	out := BulkInitiateResponse{Results: make([]BulkInitiateResult, 0, len(documentIDs))}
	for _, docID := range documentIDs {
		resp, err := e.Initiate(ctx, InitiateRequest{
			DocumentID: docID,
			Identifier: identifier,
			Signer:     signer,
			Origin:     origin,
		})
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, BulkInitiateResult{DocumentID: docID, Err: err})
			continue
		}
		out.Initiated++
		out.Results = append(out.Results, BulkInitiateResult{DocumentID: docID, Response: resp})
	}
	return out, nil
}

// Status returns the signature after a lazy expiry check.
func (e *SignatureEngine) Status(ctx context.Context, signatureID string) (*domain.Signature, error) {
	sig, err := e.Signatures.GetByID(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if expired, err := e.expireIfDue(ctx, sig, domain.Origin{}); err != nil {
		return nil, err
	} else if expired {
		return e.Signatures.GetByID(ctx, signatureID)
	}
	return sig, nil
}

// DownloadArtifact returns the document bytes as of the signed version.
func (e *SignatureEngine) DownloadArtifact(ctx context.Context, signatureID string, origin domain.Origin) ([]byte, *domain.Signature, error) {
	sig, err := e.Signatures.GetByID(ctx, signatureID)
	if err != nil {
		return nil, nil, err
	}
	if sig.Status != domain.SignatureStatusSigned {
		return nil, nil, domain.ErrInvalidState
	}
	content, err := e.Documents.GetBytesAsOf(ctx, sig.DocumentID, sig.SignedVersion)
	if err != nil {
		return nil, nil, err
	}
	if err := e.audit(ctx, sig.ID, domain.AuditEventDocumentDownloaded, map[string]any{
		"document_id":    sig.DocumentID,
		"signed_version": sig.SignedVersion,
	}, origin); err != nil {
		return nil, nil, err
	}
	return content, sig, nil
}

// Certificate returns the stored certificate and its payload form.
func (e *SignatureEngine) Certificate(ctx context.Context, signatureID string) (*domain.Certificate, domain.CertificatePayload, error) {
	cert, err := e.Certificates.GetBySignature(ctx, signatureID)
	if err != nil {
		return nil, domain.CertificatePayload{}, err
	}
	return cert, CertificatePayloadFor(*cert), nil
}

// History lists every signature attempt against a document, newest first.
func (e *SignatureEngine) History(ctx context.Context, documentID string) ([]domain.Signature, error) {
	return e.Signatures.ListByDocument(ctx, documentID)
}

// ExpireDue sweeps timed-out signatures. Invoked from the background ticker;
// the same check runs lazily on reads.
func (e *SignatureEngine) ExpireDue(ctx context.Context) (int, error) {
	expired, err := e.Signatures.ExpireDue(ctx, e.now())
	if err != nil {
		return 0, err
	}
	for _, sig := range expired {
		if err := e.audit(ctx, sig.ID, domain.AuditEventSignatureExpired, map[string]any{
			"transaction_id": sig.TransactionID,
		}, domain.Origin{}); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

func (e *SignatureEngine) expireIfDue(ctx context.Context, sig *domain.Signature, origin domain.Origin) (bool, error) {
	if sig.Status != domain.SignatureStatusPending && sig.Status != domain.SignatureStatusOTPSent {
		return false, nil
	}
	if sig.CodeExpiresAt.IsZero() || !e.now().After(sig.CodeExpiresAt) {
		return false, nil
	}
	if err := e.Signatures.MarkExpired(ctx, sig.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return true, nil
		}
		return false, err
	}
	sig.Status = domain.SignatureStatusExpired
	if err := e.audit(ctx, sig.ID, domain.AuditEventSignatureExpired, map[string]any{
		"transaction_id": sig.TransactionID,
	}, origin); err != nil {
		return false, err
	}
	return true, nil
}

func (e *SignatureEngine) audit(ctx context.Context, signatureID string, eventType domain.AuditEventType, payload map[string]any, origin domain.Origin) error {
	_, err := e.Audit.Append(ctx, domain.AuditEntry{
		SignatureID: signatureID,
		EventType:   eventType,
		Payload:     payload,
		OriginIP:    origin.IP,
		OriginAgent: origin.UserAgent,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", eventType, err)
	}
	return nil
}

// CertificatePayloadFor renders the out-of-band (QR) form of a certificate.
func CertificatePayloadFor(cert domain.Certificate) domain.CertificatePayload {
	return domain.CertificatePayload{
		CertificateID: cert.ID,
		SignatureID:   cert.SignatureID,
		DocumentID:    cert.DocumentID,
		DocumentName:  cert.DocumentName,
		DocumentHash:  cert.DocumentHash,
		SignerName:    cert.SignerName,
		SignedAt:      cert.IssuedAt.UTC().Format(time.RFC3339),
		VerifyURL:     cert.VerificationURL,
	}
}

func newCertificateID(now time.Time, signatureID string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(signatureID, "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return "CERT" + now.UTC().Format("20060102150405") + suffix
}
