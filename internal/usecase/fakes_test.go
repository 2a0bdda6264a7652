package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"esignd/internal/domain"
	"esignd/internal/infra/crypto"
	"esignd/internal/infra/otp"

	"github.com/google/uuid"
)

type memSignatureRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Signature
}

func newMemSignatureRepo() *memSignatureRepo {
	return &memSignatureRepo{rows: make(map[string]*domain.Signature)}
}

func (r *memSignatureRepo) Create(_ context.Context, sig domain.Signature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := sig
	r.rows[sig.ID] = &cp
	return nil
}

func (r *memSignatureRepo) GetByID(_ context.Context, id string) (*domain.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memSignatureRepo) ListByDocument(_ context.Context, documentID string) ([]domain.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Signature
	for _, row := range r.rows {
		if row.DocumentID == documentID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSignatureRepo) LatestSignedByHash(_ context.Context, documentHash string) (*domain.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Signature
	for _, row := range r.rows {
		if row.Status != domain.SignatureStatusSigned || row.DocumentHash != documentHash {
			continue
		}
		if best == nil || (row.SignedAt != nil && best.SignedAt != nil && row.SignedAt.After(*best.SignedAt)) {
			best = row
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memSignatureRepo) transition(id string, from []domain.SignatureStatus, apply func(*domain.Signature)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, s := range from {
		if row.Status == s {
			apply(row)
			return nil
		}
	}
	return domain.ErrInvalidState
}

func (r *memSignatureRepo) MarkOTPSent(_ context.Context, id string, issuedAt, expiresAt time.Time) error {
	return r.transition(id, []domain.SignatureStatus{domain.SignatureStatusPending}, func(row *domain.Signature) {
		row.Status = domain.SignatureStatusOTPSent
		row.CodeIssuedAt = issuedAt
		row.CodeExpiresAt = expiresAt
	})
}

func (r *memSignatureRepo) MarkVerified(_ context.Context, id, verifiedName string) error {
	return r.transition(id, []domain.SignatureStatus{domain.SignatureStatusOTPSent}, func(row *domain.Signature) {
		row.Status = domain.SignatureStatusVerified
		row.VerifiedName = verifiedName
	})
}

func (r *memSignatureRepo) RecordFailedAttempt(_ context.Context, id string, attempts int, message string) error {
	return r.transition(id, []domain.SignatureStatus{domain.SignatureStatusOTPSent}, func(row *domain.Signature) {
		row.Attempts = attempts
		row.ErrorMessage = message
	})
}

func (r *memSignatureRepo) MarkFailed(_ context.Context, id, message string) error {
	return r.transition(id, []domain.SignatureStatus{
		domain.SignatureStatusPending, domain.SignatureStatusOTPSent, domain.SignatureStatusVerified,
	}, func(row *domain.Signature) {
		row.Status = domain.SignatureStatusFailed
		row.ErrorMessage = message
	})
}

func (r *memSignatureRepo) MarkSigned(_ context.Context, id string, signedAt time.Time, version int64, documentHash, certificateID string) error {
	return r.transition(id, []domain.SignatureStatus{domain.SignatureStatusVerified}, func(row *domain.Signature) {
		row.Status = domain.SignatureStatusSigned
		at := signedAt
		row.SignedAt = &at
		row.SignedVersion = version
		row.DocumentHash = documentHash
		row.CertificateID = certificateID
	})
}

func (r *memSignatureRepo) MarkExpired(_ context.Context, id string) error {
	return r.transition(id, []domain.SignatureStatus{
		domain.SignatureStatusPending, domain.SignatureStatusOTPSent,
	}, func(row *domain.Signature) {
		row.Status = domain.SignatureStatusExpired
	})
}

func (r *memSignatureRepo) ExpireDue(_ context.Context, now time.Time) ([]domain.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Signature
	for _, row := range r.rows {
		if row.Status != domain.SignatureStatusPending && row.Status != domain.SignatureStatusOTPSent {
			continue
		}
		if row.CodeExpiresAt.IsZero() || !now.After(row.CodeExpiresAt) {
			continue
		}
		row.Status = domain.SignatureStatusExpired
		out = append(out, *row)
	}
	return out, nil
}

type memWorkflowRepo struct {
	mu          sync.Mutex
	workflows   map[string]*domain.Workflow
	signatories map[string]*domain.Signatory
}

func newMemWorkflowRepo() *memWorkflowRepo {
	return &memWorkflowRepo{
		workflows:   make(map[string]*domain.Workflow),
		signatories: make(map[string]*domain.Signatory),
	}
}

func (r *memWorkflowRepo) Create(_ context.Context, wf domain.Workflow, signatories []domain.Signatory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := wf
	r.workflows[wf.ID] = &cp
	for _, s := range signatories {
		sc := s
		r.signatories[s.ID] = &sc
	}
	return nil
}

func (r *memWorkflowRepo) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (r *memWorkflowRepo) ListSignatories(_ context.Context, workflowID string) ([]domain.Signatory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Signatory
	for _, s := range r.signatories {
		if s.WorkflowID == workflowID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *memWorkflowRepo) GetSignatory(_ context.Context, workflowID, signatoryID string) (*domain.Signatory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signatories[signatoryID]
	if !ok || s.WorkflowID != workflowID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memWorkflowRepo) AddSignatory(_ context.Context, s domain.Signatory) (*domain.Signatory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.signatories[s.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memWorkflowRepo) RemoveSignatory(_ context.Context, workflowID, signatoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signatories[signatoryID]
	if !ok || s.WorkflowID != workflowID {
		return domain.ErrNotFound
	}
	delete(r.signatories, signatoryID)
	return nil
}

func (r *memWorkflowRepo) SetSignatorySignature(_ context.Context, signatoryID, signatureID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signatories[signatoryID]
	if !ok {
		return domain.ErrNotFound
	}
	s.SignatureID = signatureID
	return nil
}

func (r *memWorkflowRepo) SetSignatoryReminded(_ context.Context, signatoryID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signatories[signatoryID]
	if !ok {
		return domain.ErrNotFound
	}
	t := at
	s.LastReminderAt = &t
	return nil
}

func (r *memWorkflowRepo) MarkCompleted(_ context.Context, workflowID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[workflowID]
	if !ok {
		return domain.ErrNotFound
	}
	if wf.Status == domain.WorkflowStatusInProgress {
		wf.Status = domain.WorkflowStatusCompleted
		t := at
		wf.CompletedAt = &t
	}
	return nil
}

func (r *memWorkflowRepo) WithWorkflowLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries map[string][]domain.AuditEntry
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{entries: make(map[string][]domain.AuditEntry)}
}

func (r *memAuditRepo) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.entries[entry.SignatureID]
	entry.ID = uuid.NewString()
	entry.Seq = int64(len(chain)) + 1
	_, payloadHash, err := crypto.HashPayload(entry.Payload)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry.PayloadHash = payloadHash
	if len(chain) == 0 {
		entry.PrevEntryHash = crypto.GenesisHash(entry.SignatureID)
	} else {
		entry.PrevEntryHash = chain[len(chain)-1].EntryHash
	}
	entry.EntryHash, err = crypto.HashAuditEntry(entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	r.entries[entry.SignatureID] = append(chain, entry)
	return entry, nil
}

func (r *memAuditRepo) List(_ context.Context, signatureID string, limit, offset int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.entries[signatureID]
	if offset >= len(chain) {
		return nil, nil
	}
	end := len(chain)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.AuditEntry, end-offset)
	copy(out, chain[offset:end])
	return out, nil
}

func (r *memAuditRepo) Count(_ context.Context, signatureID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries[signatureID])), nil
}

func (r *memAuditRepo) types(signatureID string) []domain.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEventType
	for _, e := range r.entries[signatureID] {
		out = append(out, e.EventType)
	}
	return out
}

type memCertificateRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Certificate
}

func newMemCertificateRepo() *memCertificateRepo {
	return &memCertificateRepo{rows: make(map[string]*domain.Certificate)}
}

func (r *memCertificateRepo) Create(_ context.Context, cert domain.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[cert.ID]; ok {
		return nil
	}
	cp := cert
	r.rows[cert.ID] = &cp
	return nil
}

func (r *memCertificateRepo) GetByID(_ context.Context, certificateID string) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.rows[certificateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

func (r *memCertificateRepo) GetBySignature(_ context.Context, signatureID string) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cert := range r.rows {
		if cert.SignatureID == signatureID {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memDocumentStore struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	versions map[string][]byte
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{
		docs:     make(map[string]*domain.Document),
		versions: make(map[string][]byte),
	}
}

func (s *memDocumentStore) put(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := doc
	s.docs[doc.ID] = &cp
}

func (s *memDocumentStore) Get(_ context.Context, documentID string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memDocumentStore) GetBytesAsOf(_ context.Context, documentID string, version int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.versions[versionKey(documentID, version)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (s *memDocumentStore) SnapshotVersion(_ context.Context, documentID string, version int64, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey(documentID, version)
	if _, ok := s.versions[key]; !ok {
		s.versions[key] = append([]byte(nil), content...)
	}
	return nil
}

func versionKey(documentID string, version int64) string {
	return documentID + "#" + strconv.FormatInt(version, 10)
}

type sentCode struct {
	phone string
	code  string
	txn   string
}

type memNotifier struct {
	mu        sync.Mutex
	codes     []sentCode
	reminders []string
}

func (n *memNotifier) SendCode(phone, code, transactionID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, sentCode{phone: phone, code: code, txn: transactionID})
	return nil
}

func (n *memNotifier) SendReminder(email, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, email)
	return nil
}

type fixture struct {
	signatures   *memSignatureRepo
	workflows    *memWorkflowRepo
	audit        *memAuditRepo
	certificates *memCertificateRepo
	documents    *memDocumentStore
	notifier     *memNotifier
	engine       *SignatureEngine
	orchestrator *WorkflowOrchestrator
	verifier     *DocumentVerifier
	now          time.Time
	clock        func() time.Time
	advance      func(d time.Duration)
}

func newFixture() *fixture {
	f := &fixture{
		signatures:   newMemSignatureRepo(),
		workflows:    newMemWorkflowRepo(),
		audit:        newMemAuditRepo(),
		certificates: newMemCertificateRepo(),
		documents:    newMemDocumentStore(),
		notifier:     &memNotifier{},
		now:          time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
	f.clock = func() time.Time { return f.now }
	f.advance = func(d time.Duration) { f.now = f.now.Add(d) }

	cryptoSvc := &crypto.Service{}
	identity := &IdentityVerifier{
		Challenges: otp.NewMemoryStore(otp.MemoryStoreConfig{Now: f.clock}),
		Codes:      otp.StaticSource{},
		Now:        f.clock,
	}
	f.engine = &SignatureEngine{
		Signatures:   f.signatures,
		Certificates: f.certificates,
		Audit:        f.audit,
		Documents:    f.documents,
		Identity:     identity,
		Notifier:     f.notifier,
		Crypto:       cryptoSvc,
		Issuer:       "Test Legal Platform",
		VerifyBase:   "https://example.test/verify",
		Now:          f.clock,
	}
	f.orchestrator = &WorkflowOrchestrator{
		Workflows:  f.workflows,
		Signatures: f.signatures,
		Audit:      f.audit,
		Documents:  f.documents,
		Engine:     f.engine,
		Notifier:   f.notifier,
		Now:        f.clock,
	}
	f.verifier = &DocumentVerifier{
		Signatures:   f.signatures,
		Certificates: f.certificates,
		Audit:        f.audit,
		Crypto:       cryptoSvc,
		Now:          f.clock,
	}

	f.documents.put(domain.Document{
		ID:        "doc-1",
		OwnerID:   "owner-1",
		Name:      "service-agreement.pdf",
		MediaType: "application/pdf",
		Content:   []byte("agreement body v1"),
		Version:   1,
		CreatedAt: f.now,
	})
	return f
}

const validIdentifier = "234567891234"
