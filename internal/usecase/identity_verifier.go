package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"esignd/internal/domain"
	"esignd/internal/infra/identity"

	"github.com/google/uuid"
)

// IdentityVerifier validates signer identifiers and manages one-time-code
// challenges. Code delivery belongs to the notification gateway; this only
// handles issuance, expiry and the one-shot check.
type IdentityVerifier struct {
	Challenges  ChallengeStore
	Codes       CodeSource
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

const defaultMaxAttempts = 3

func (v *IdentityVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *IdentityVerifier) maxAttempts() int {
	if v.MaxAttempts > 0 {
		return v.MaxAttempts
	}
	return defaultMaxAttempts
}

func (v *IdentityVerifier) ttl() time.Duration {
	if v.TTL > 0 {
		return v.TTL
	}
	return 10 * time.Minute
}

// ValidateIdentifier normalizes a raw identifier or fails with
// domain.ErrInvalidIdentifier.
func (v *IdentityVerifier) ValidateIdentifier(raw string) (string, error) {
	return identity.Normalize(raw)
}

// IssueChallenge binds a fresh code to a new transaction id. The returned
// disclose flag reports whether the code may be echoed to the caller.
func (v *IdentityVerifier) IssueChallenge(ctx context.Context, normalizedID string, signer domain.SignerDetails) (domain.Challenge, bool, error) {
	code, err := v.Codes.Generate()
	if err != nil {
		return domain.Challenge{}, false, err
	}
	now := v.now()
	ch := domain.Challenge{
		TransactionID:   newTransactionID(now),
		Code:            code,
		IdentifierHash:  identity.Hash(normalizedID),
		IdentifierLast4: identity.Last4(normalizedID),
		SignerName:      signer.Name,
		IssuedAt:        now,
		ExpiresAt:       now.Add(v.ttl()),
	}
	if err := v.Challenges.Put(ctx, ch); err != nil {
		return domain.Challenge{}, false, fmt.Errorf("issue challenge: %w", err)
	}
	return ch, v.Codes.Disclose(), nil
}

// CheckChallenge performs one atomic consume attempt against the store.
// Interpretation of the decision (expiry vs. unknown transaction) is left to
// the caller, which holds the durable issuance record.
func (v *IdentityVerifier) CheckChallenge(ctx context.Context, transactionID, code string) (domain.ChallengeDecision, error) {
	return v.Challenges.Consume(ctx, transactionID, code, v.maxAttempts())
}

func newTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return "TXN_" + now.UTC().Format("20060102") + "_" + suffix
}
