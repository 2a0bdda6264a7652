package domain

import "time"

// Challenge is the ephemeral one-time-code state for a single verification
// transaction. It lives in the challenge store until consumed, exhausted or
// expired; the durable record of issuance is on the Signature row.
type Challenge struct {
	TransactionID   string
	Code            string
	IdentifierHash  string
	IdentifierLast4 string
	SignerName      string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

type ChallengeOutcome string

const (
	ChallengeOK        ChallengeOutcome = "ok"
	ChallengeNotFound  ChallengeOutcome = "not_found"
	ChallengeMismatch  ChallengeOutcome = "mismatch"
	ChallengeExhausted ChallengeOutcome = "exhausted"
)

// ChallengeDecision is the result of one atomic consume attempt. SignerName
// and IdentifierLast4 are set only when Outcome is ChallengeOK.
type ChallengeDecision struct {
	Outcome         ChallengeOutcome
	SignerName      string
	IdentifierLast4 string
	Attempts        int
}
