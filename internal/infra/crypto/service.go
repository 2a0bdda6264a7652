// Package crypto provides the content hashing used for document integrity
// and the audit hash chain.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"esignd/internal/domain"
)

type Service struct{}

// HashDocument computes the sha256 hex digest of a document artifact.
func (s *Service) HashDocument(content []byte) string {
	return HashBytes(content)
}

func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashPayload canonicalizes an event payload and returns its sha256 hex
// digest. encoding/json sorts map keys, which is canonical enough for
// map-shaped payloads; nested structs are marshaled through a map round
// trip first.
func HashPayload(payload map[string]any) ([]byte, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}

// HashAuditEntry computes the chained entry hash over the fields that pin an
// entry to its position: version, signature id, seq, event type, payload
// hash, previous entry hash and timestamp.
func HashAuditEntry(entry domain.AuditEntry) (string, error) {
	if entry.PayloadHash == "" {
		return "", fmt.Errorf("payload hash is required")
	}
	if entry.PrevEntryHash == "" {
		return "", fmt.Errorf("prev entry hash is required")
	}
	fields := map[string]any{
		"v":               domain.AuditChainVersion,
		"signature_id":    entry.SignatureID,
		"seq":             entry.Seq,
		"event_type":      string(entry.EventType),
		"payload_hash":    entry.PayloadHash,
		"prev_entry_hash": entry.PrevEntryHash,
		"created_at":      entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// GenesisHash anchors the first entry of a signature's chain.
func GenesisHash(signatureID string) string {
	sum := sha256.Sum256([]byte(domain.AuditChainVersion + ":" + signatureID))
	return hex.EncodeToString(sum[:])
}
