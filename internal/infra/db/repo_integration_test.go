//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"esignd/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, gdb)
	store := &Store{DB: gdb}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func lockTestDB(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(246813579)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(246813579)")
		_ = conn.Close()
	})
}

func resetDB(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	if err := gdb.Exec(`
		TRUNCATE documents,
			document_versions,
			signatures,
			signature_workflows,
			signatories,
			signature_audit_entries,
			signature_audit_seq,
			signature_certificates
		RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func insertSignature(t *testing.T, gdb *gorm.DB, status domain.SignatureStatus) string {
	t.Helper()
	repo := NewSignatureRepository(gdb)
	id := uuid.NewString()
	err := repo.Create(context.Background(), domain.Signature{
		ID:              id,
		DocumentID:      uuid.NewString(),
		SignerName:      "Test Signer",
		IdentifierHash:  strings.Repeat("a", 64),
		IdentifierLast4: "1234",
		Status:          status,
		TransactionID:   "TXN_TEST_" + id[:8],
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert signature: %v", err)
	}
	return id
}

func TestSignatureRepository_GuardedTransitions(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	repo := NewSignatureRepository(gdb)

	id := insertSignature(t, gdb, domain.SignatureStatusPending)
	now := time.Now().UTC()

	if err := repo.MarkOTPSent(ctx, id, now, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("mark otp_sent: %v", err)
	}
	// Repeating the same transition must fail: the guard no longer matches.
	if err := repo.MarkOTPSent(ctx, id, now, now.Add(10*time.Minute)); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second mark otp_sent: err = %v, want ErrInvalidState", err)
	}
	if err := repo.MarkSigned(ctx, id, now, 1, strings.Repeat("b", 64), "CERT1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("sign from otp_sent: err = %v, want ErrInvalidState", err)
	}

	if err := repo.MarkVerified(ctx, id, "Test Signer"); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if err := repo.MarkSigned(ctx, id, now, 1, strings.Repeat("b", 64), "CERT1"); err != nil {
		t.Fatalf("mark signed: %v", err)
	}
	if err := repo.MarkExpired(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expire signed row: err = %v, want ErrInvalidState", err)
	}

	sig, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sig.Status != domain.SignatureStatusSigned {
		t.Fatalf("status = %s, want signed", sig.Status)
	}
	if sig.SignedAt == nil {
		t.Fatal("signed_at not recorded")
	}
}

func TestSignatureRepository_ExpireDue(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	repo := NewSignatureRepository(gdb)

	now := time.Now().UTC()
	due := insertSignature(t, gdb, domain.SignatureStatusPending)
	if err := repo.MarkOTPSent(ctx, due, now.Add(-20*time.Minute), now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("mark otp_sent: %v", err)
	}
	fresh := insertSignature(t, gdb, domain.SignatureStatusPending)
	if err := repo.MarkOTPSent(ctx, fresh, now, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("mark otp_sent: %v", err)
	}

	expired, err := repo.ExpireDue(ctx, now)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != due {
		t.Fatalf("expired = %v, want just %s", expired, due)
	}

	sig, err := repo.GetByID(ctx, fresh)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sig.Status != domain.SignatureStatusOTPSent {
		t.Fatalf("fresh row status = %s, want otp_sent", sig.Status)
	}
}

func TestAuditEntryRepository_HashChain(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	repo := NewAuditEntryRepository(gdb)

	sigID := uuid.NewString()
	var prev string
	for i, evt := range []domain.AuditEventType{
		domain.AuditEventSignatureInitiated,
		domain.AuditEventOTPRequested,
		domain.AuditEventOTPVerified,
	} {
		entry, err := repo.Append(ctx, domain.AuditEntry{
			SignatureID: sigID,
			EventType:   evt,
			Payload:     map[string]any{"step": i},
		})
		if err != nil {
			t.Fatalf("append %s: %v", evt, err)
		}
		if entry.Seq != int64(i+1) {
			t.Fatalf("seq = %d, want %d", entry.Seq, i+1)
		}
		if i > 0 && entry.PrevEntryHash != prev {
			t.Fatalf("entry %d not chained to predecessor", i)
		}
		prev = entry.EntryHash
	}

	entries, err := repo.List(ctx, sigID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	count, err := repo.Count(ctx, sigID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestCertificateRepository_WriteOnce(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	repo := NewCertificateRepository(gdb)

	cert := domain.Certificate{
		ID:           "CERT20260315090000ABCDEF",
		SignatureID:  uuid.NewString(),
		Issuer:       "Test",
		DocumentID:   uuid.NewString(),
		DocumentName: "a.pdf",
		DocumentHash: strings.Repeat("c", 64),
		SignerName:   "Test Signer",
		IssuedAt:     time.Now().UTC(),
	}
	if err := repo.Create(ctx, cert); err != nil {
		t.Fatalf("create: %v", err)
	}
	// A retry must not error or overwrite.
	retry := cert
	retry.SignerName = "Someone Else"
	if err := repo.Create(ctx, retry); err != nil {
		t.Fatalf("retry create: %v", err)
	}
	got, err := repo.GetByID(ctx, cert.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SignerName != "Test Signer" {
		t.Fatalf("signer = %q, certificate was overwritten", got.SignerName)
	}
	if _, err := repo.GetBySignature(ctx, cert.SignatureID); err != nil {
		t.Fatalf("get by signature: %v", err)
	}
}

func TestDocumentRepository_VersionSnapshots(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	repo := NewDocumentRepository(gdb)

	doc := domain.Document{
		ID:        uuid.NewString(),
		OwnerID:   "owner-1",
		Name:      "a.pdf",
		MediaType: "application/pdf",
		Content:   []byte("v1"),
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SnapshotVersion(ctx, doc.ID, 1, []byte("v1")); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := repo.UpdateContent(ctx, doc.ID, []byte("v2"), time.Now()); err != nil {
		t.Fatalf("update: %v", err)
	}

	content, err := repo.GetBytesAsOf(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("get as of v1: %v", err)
	}
	if string(content) != "v1" {
		t.Fatalf("v1 content = %q", content)
	}
	content, err = repo.GetBytesAsOf(ctx, doc.ID, 2)
	if err != nil {
		t.Fatalf("get as of v2: %v", err)
	}
	if string(content) != "v2" {
		t.Fatalf("v2 content = %q", content)
	}
	if _, err := repo.GetBytesAsOf(ctx, doc.ID, 9); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing version err = %v, want ErrNotFound", err)
	}
}
