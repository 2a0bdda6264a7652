package otp

import (
	"context"
	"sync"
	"time"

	"esignd/internal/domain"
)

type memoryStore struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]*memoryChallenge
}

type memoryChallenge struct {
	challenge domain.Challenge
	attempts  int
}

type MemoryStoreConfig struct {
	Now func() time.Time
}

// NewMemoryStore returns an in-process challenge store with the same
// one-shot consume semantics as the redis store.
func NewMemoryStore(cfg MemoryStoreConfig) *memoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &memoryStore{
		now:  cfg.Now,
		data: make(map[string]*memoryChallenge),
	}
}

func (m *memoryStore) Put(_ context.Context, ch domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gc()
	m.data[ch.TransactionID] = &memoryChallenge{challenge: ch}
	return nil
}

func (m *memoryStore) Consume(_ context.Context, transactionID, code string, maxAttempts int) (domain.ChallengeDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[transactionID]
	if ok && m.now().After(entry.challenge.ExpiresAt) {
		delete(m.data, transactionID)
		ok = false
	}
	if !ok {
		return domain.ChallengeDecision{Outcome: domain.ChallengeNotFound}, nil
	}

	if code == entry.challenge.Code {
		decision := domain.ChallengeDecision{
			Outcome:         domain.ChallengeOK,
			SignerName:      entry.challenge.SignerName,
			IdentifierLast4: entry.challenge.IdentifierLast4,
			Attempts:        entry.attempts,
		}
		delete(m.data, transactionID)
		return decision, nil
	}

	entry.attempts++
	if maxAttempts > 0 && entry.attempts >= maxAttempts {
		delete(m.data, transactionID)
		return domain.ChallengeDecision{Outcome: domain.ChallengeExhausted, Attempts: entry.attempts}, nil
	}
	return domain.ChallengeDecision{Outcome: domain.ChallengeMismatch, Attempts: entry.attempts}, nil
}

func (m *memoryStore) gc() {
	now := m.now()
	for id, entry := range m.data {
		if now.After(entry.challenge.ExpiresAt) {
			delete(m.data, id)
		}
	}
}
