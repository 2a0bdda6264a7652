package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"esignd/internal/domain"
	"esignd/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type signerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type initiateRequest struct {
	DocumentID string      `json:"document_id"`
	Identifier string      `json:"identifier"`
	Signer     signerInput `json:"signer"`
}

type initiateResponse struct {
	SignatureID      string `json:"signature_id"`
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expires_at"`
	MaskedIdentifier string `json:"masked_identifier"`
	DemoCode         string `json:"demo_code,omitempty"`
}

type bulkInitiateRequest struct {
	DocumentIDs []string    `json:"document_ids"`
	Identifier  string      `json:"identifier"`
	Signer      signerInput `json:"signer"`
}

type bulkInitiateItem struct {
	DocumentID string            `json:"document_id"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Result     *initiateResponse `json:"result,omitempty"`
}

type bulkInitiateResponse struct {
	Initiated int                `json:"initiated"`
	Failed    int                `json:"failed"`
	Results   []bulkInitiateItem `json:"results"`
}

type otpRequest struct {
	Code string `json:"code"`
}

type signatureResponse struct {
	SignatureID     string `json:"signature_id"`
	DocumentID      string `json:"document_id"`
	SignatoryID     string `json:"signatory_id,omitempty"`
	SignerName      string `json:"signer_name"`
	IdentifierLast4 string `json:"identifier_last4"`
	Status          string `json:"status"`
	TransactionID   string `json:"transaction_id"`
	Attempts        int    `json:"attempts"`
	SignedAt        string `json:"signed_at,omitempty"`
	SignedVersion   int64  `json:"signed_version,omitempty"`
	DocumentHash    string `json:"document_hash,omitempty"`
	CertificateID   string `json:"certificate_id,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type applyResponse struct {
	SignatureID   string `json:"signature_id"`
	Status        string `json:"status"`
	SignedAt      string `json:"signed_at"`
	DocumentHash  string `json:"document_hash"`
	CertificateID string `json:"certificate_id"`
}

type certificateResponse struct {
	CertificateID   string                    `json:"certificate_id"`
	SignatureID     string                    `json:"signature_id"`
	Issuer          string                    `json:"issuer"`
	DocumentID      string                    `json:"document_id"`
	DocumentName    string                    `json:"document_name"`
	DocumentHash    string                    `json:"document_hash"`
	SignerName      string                    `json:"signer_name"`
	IssuedAt        string                    `json:"issued_at"`
	VerificationURL string                    `json:"verification_url"`
	Payload         domain.CertificatePayload `json:"payload"`
}

type auditEntryResponse struct {
	Seq           int64          `json:"seq"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	PayloadHash   string         `json:"payload_hash"`
	OriginIP      string         `json:"origin_ip,omitempty"`
	OriginAgent   string         `json:"origin_agent,omitempty"`
	PrevEntryHash string         `json:"prev_entry_hash"`
	EntryHash     string         `json:"entry_hash"`
	CreatedAt     string         `json:"created_at"`
}

type auditListResponse struct {
	SignatureID string               `json:"signature_id"`
	Total       int64                `json:"total"`
	Entries     []auditEntryResponse `json:"entries"`
}

type createWorkflowRequest struct {
	DocumentID      string           `json:"document_id"`
	CreatedBy       string           `json:"created_by"`
	SigningOrder    string           `json:"signing_order"`
	ReminderEnabled bool             `json:"reminder_enabled"`
	Signatories     []signatoryInput `json:"signatories"`
}

type signatoryInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

type signatoryResponse struct {
	SignatoryID    string `json:"signatory_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role,omitempty"`
	OrderIndex     int    `json:"order_index"`
	Status         string `json:"status"`
	SignatureID    string `json:"signature_id,omitempty"`
	SignedAt       string `json:"signed_at,omitempty"`
	LastReminderAt string `json:"last_reminder_at,omitempty"`
}

type workflowResponse struct {
	WorkflowID      string              `json:"workflow_id"`
	DocumentID      string              `json:"document_id"`
	SigningOrder    string              `json:"signing_order"`
	ReminderEnabled bool                `json:"reminder_enabled"`
	Status          string              `json:"status"`
	Signatories     []signatoryResponse `json:"signatories"`
	Total           int                 `json:"total"`
	Signed          int                 `json:"signed"`
	Pending         int                 `json:"pending"`
	CreatedAt       string              `json:"created_at"`
	CompletedAt     string              `json:"completed_at,omitempty"`
}

type requestSignatureRequest struct {
	Identifier string `json:"identifier"`
}

type remindersResponse struct {
	WorkflowID    string `json:"workflow_id"`
	RemindersSent int    `json:"reminders_sent"`
}

type verifyRequest struct {
	ContentBase64 string                     `json:"content_base64"`
	Certificate   *domain.CertificatePayload `json:"certificate,omitempty"`
}

type verifyResponse struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	Method  string         `json:"method"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) handleInitiateSignature(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	if req.DocumentID == "" || req.Signer.Name == "" {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "document_id and signer.name are required")
		return
	}
	resp, err := s.engine.Initiate(c.Request.Context(), usecase.InitiateRequest{
		DocumentID: req.DocumentID,
		Identifier: req.Identifier,
		Signer: domain.SignerDetails{
			Name:  req.Signer.Name,
			Email: req.Signer.Email,
			Phone: req.Signer.Phone,
		},
		Origin: origin(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, initiateResponseFrom(resp))
}

func (s *Server) handleBulkInitiate(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req bulkInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	if req.Signer.Name == "" {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "signer.name is required")
		return
	}
	resp, err := s.engine.BulkInitiate(c.Request.Context(), req.DocumentIDs, req.Identifier, domain.SignerDetails{
		Name:  req.Signer.Name,
		Email: req.Signer.Email,
		Phone: req.Signer.Phone,
	}, origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := bulkInitiateResponse{
		Initiated: resp.Initiated,
		Failed:    resp.Failed,
		Results:   make([]bulkInitiateItem, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		item := bulkInitiateItem{DocumentID: r.DocumentID, Success: r.Err == nil}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			ir := initiateResponseFrom(r.Response)
			item.Result = &ir
		}
		out.Results = append(out.Results, item)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerifyOTP(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	if req.Code == "" {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "code is required")
		return
	}
	sig, err := s.engine.VerifyOTP(c.Request.Context(), c.Param("id"), req.Code, origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signatureResponseFrom(sig))
}

func (s *Server) handleApplySignature(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	resp, err := s.engine.Apply(c.Request.Context(), c.Param("id"), origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, applyResponse{
		SignatureID:   resp.SignatureID,
		Status:        string(resp.Status),
		SignedAt:      resp.SignedAt.UTC().Format(time.RFC3339),
		DocumentHash:  resp.DocumentHash,
		CertificateID: resp.CertificateID,
	})
}

func (s *Server) handleSignatureStatus(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	sig, err := s.engine.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signatureResponseFrom(sig))
}

func (s *Server) handleDownloadDocument(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sig, err := s.engine.Status(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := s.documents.Get(ctx, sig.DocumentID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.authorize(c, principal, "download", doc) {
		return
	}
	content, _, err := s.engine.DownloadArtifact(ctx, sig.ID, origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Name+`"`)
	c.Data(http.StatusOK, doc.MediaType, content)
}

func (s *Server) handleSignatureCertificate(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	cert, payload, err := s.engine.Certificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, certificateResponseFrom(cert, payload))
}

func (s *Server) handleSignatureAudit(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	ctx := c.Request.Context()
	signatureID := c.Param("id")
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)

	total, err := s.audit.Count(ctx, signatureID)
	if err != nil {
		writeError(c, err)
		return
	}
	if total == 0 {
		writeError(c, domain.ErrNotFound)
		return
	}
	entries, err := s.audit.List(ctx, signatureID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := auditListResponse{SignatureID: signatureID, Total: total}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			Seq:           e.Seq,
			EventType:     string(e.EventType),
			Payload:       e.Payload,
			PayloadHash:   e.PayloadHash,
			OriginIP:      e.OriginIP,
			OriginAgent:   e.OriginAgent,
			PrevEntryHash: e.PrevEntryHash,
			EntryHash:     e.EntryHash,
			CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDocumentSignatures(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	sigs, err := s.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]signatureResponse, 0, len(sigs))
	for i := range sigs {
		out = append(out, signatureResponseFrom(&sigs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "signatures": out})
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = principal.Subject
	}
	in := usecase.CreateWorkflowRequest{
		DocumentID:      req.DocumentID,
		CreatedBy:       createdBy,
		SigningOrder:    req.SigningOrder,
		ReminderEnabled: req.ReminderEnabled,
	}
	for _, sg := range req.Signatories {
		in.Signatories = append(in.Signatories, usecase.SignatoryInput{
			Name:  sg.Name,
			Email: sg.Email,
			Phone: sg.Phone,
			Role:  sg.Role,
		})
	}
	snap, err := s.orchestrator.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, workflowResponseFrom(snap))
}

func (s *Server) handleWorkflowStatus(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	snap, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, workflowResponseFrom(snap))
}

func (s *Server) handleAddSignatory(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req signatoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	added, err := s.orchestrator.AddSignatory(c.Request.Context(), c.Param("id"), usecase.SignatoryInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  req.Role,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, signatoryResponse{
		SignatoryID: added.ID,
		Name:        added.Name,
		Email:       added.Email,
		Role:        added.Role,
		OrderIndex:  added.OrderIndex,
		Status:      string(domain.SignatureStatusPending),
	})
}

func (s *Server) handleRemoveSignatory(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	err := s.orchestrator.RemoveSignatory(c.Request.Context(), c.Param("id"), c.Param("sid"), origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRequestSignature(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req requestSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	resp, err := s.orchestrator.RequestSignature(c.Request.Context(), c.Param("id"), c.Param("sid"), req.Identifier, origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, initiateResponseFrom(resp))
}

func (s *Server) handleSendReminders(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	sent, err := s.orchestrator.SendReminders(c.Request.Context(), c.Param("id"), origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, remindersResponse{WorkflowID: c.Param("id"), RemindersSent: sent})
}

func (s *Server) handleVerifyDocument(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "invalid json")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION", "content_base64 is not valid base64")
		return
	}
	result, err := s.verifier.Verify(c.Request.Context(), content, req.Certificate, origin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{
		Valid:   result.Valid,
		Reason:  result.Reason,
		Method:  result.Method,
		Details: result.Details,
	})
}

func (s *Server) handleCertificateLookup(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	cert, err := s.certificates.GetByID(c.Request.Context(), c.Param("certificate_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, certificateResponseFrom(cert, usecase.CertificatePayloadFor(*cert)))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func initiateResponseFrom(resp usecase.InitiateResponse) initiateResponse {
	return initiateResponse{
		SignatureID:      resp.SignatureID,
		TransactionID:    resp.TransactionID,
		Status:           string(resp.Status),
		ExpiresAt:        resp.ExpiresAt.UTC().Format(time.RFC3339),
		MaskedIdentifier: resp.MaskedIdentifier,
		DemoCode:         resp.DemoCode,
	}
}

func signatureResponseFrom(sig *domain.Signature) signatureResponse {
	out := signatureResponse{
		SignatureID:     sig.ID,
		DocumentID:      sig.DocumentID,
		SignatoryID:     sig.SignatoryID,
		SignerName:      signerDisplayName(sig),
		IdentifierLast4: sig.IdentifierLast4,
		Status:          string(sig.Status),
		TransactionID:   sig.TransactionID,
		Attempts:        sig.Attempts,
		SignedVersion:   sig.SignedVersion,
		DocumentHash:    sig.DocumentHash,
		CertificateID:   sig.CertificateID,
		ErrorMessage:    sig.ErrorMessage,
		CreatedAt:       sig.CreatedAt.UTC().Format(time.RFC3339),
	}
	if sig.SignedAt != nil {
		out.SignedAt = sig.SignedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func signerDisplayName(sig *domain.Signature) string {
	if sig.VerifiedName != "" {
		return sig.VerifiedName
	}
	return sig.SignerName
}

func certificateResponseFrom(cert *domain.Certificate, payload domain.CertificatePayload) certificateResponse {
	return certificateResponse{
		CertificateID:   cert.ID,
		SignatureID:     cert.SignatureID,
		Issuer:          cert.Issuer,
		DocumentID:      cert.DocumentID,
		DocumentName:    cert.DocumentName,
		DocumentHash:    cert.DocumentHash,
		SignerName:      cert.SignerName,
		IssuedAt:        cert.IssuedAt.UTC().Format(time.RFC3339),
		VerificationURL: cert.VerificationURL,
		Payload:         payload,
	}
}

func workflowResponseFrom(snap *domain.WorkflowSnapshot) workflowResponse {
	out := workflowResponse{
		WorkflowID:      snap.Workflow.ID,
		DocumentID:      snap.Workflow.DocumentID,
		SigningOrder:    string(snap.Workflow.SigningOrder),
		ReminderEnabled: snap.Workflow.ReminderEnabled,
		Status:          string(snap.Workflow.Status),
		Total:           snap.Progress.Total,
		Signed:          snap.Progress.Signed,
		Pending:         snap.Progress.Pending,
		CreatedAt:       snap.Workflow.CreatedAt.UTC().Format(time.RFC3339),
	}
	if snap.Workflow.CompletedAt != nil {
		out.CompletedAt = snap.Workflow.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, st := range snap.Signatories {
		sr := signatoryResponse{
			SignatoryID: st.Signatory.ID,
			Name:        st.Signatory.Name,
			Email:       st.Signatory.Email,
			Role:        st.Signatory.Role,
			OrderIndex:  st.Signatory.OrderIndex,
			Status:      string(st.Status),
			SignatureID: st.Signatory.SignatureID,
		}
		if st.SignedAt != nil {
			sr.SignedAt = st.SignedAt.UTC().Format(time.RFC3339)
		}
		if st.Signatory.LastReminderAt != nil {
			sr.LastReminderAt = st.Signatory.LastReminderAt.UTC().Format(time.RFC3339)
		}
		out.Signatories = append(out.Signatories, sr)
	}
	return out
}

func origin(c *gin.Context) domain.Origin {
	return domain.Origin{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		status, code = http.StatusBadRequest, "INVALID_IDENTIFIER"
	case errors.Is(err, domain.ErrInvalidCode):
		status, code = http.StatusBadRequest, "INVALID_CODE"
	case errors.Is(err, domain.ErrCodeExpired):
		status, code = http.StatusConflict, "CODE_EXPIRED"
	case errors.Is(err, domain.ErrTooManyAttempts):
		status, code = http.StatusConflict, "TOO_MANY_ATTEMPTS"
	case errors.Is(err, domain.ErrAlreadySigned):
		status, code = http.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrOutOfOrder):
		status, code = http.StatusConflict, "OUT_OF_ORDER"
	case errors.Is(err, domain.ErrWorkflowCompleted):
		status, code = http.StatusConflict, "WORKFLOW_COMPLETED"
	case errors.Is(err, domain.ErrSignatorySigned):
		status, code = http.StatusConflict, "SIGNATORY_SIGNED"
	case errors.Is(err, domain.ErrDuplicateEmail):
		status, code = http.StatusBadRequest, "DUPLICATE_EMAIL"
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmptySignatories),
		errors.Is(err, domain.ErrEmptyDocuments),
		errors.Is(err, domain.ErrInvalidOrderPolicy):
		status, code = http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrDocumentNotFound):
		status, code = http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
