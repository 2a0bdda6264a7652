package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"esignd/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	now    func() time.Time
}

// consumeScript performs the one-shot code check atomically: a correct code
// deletes the challenge and returns the bound signer fields; a wrong code
// bumps the attempt counter and deletes the challenge once the budget is
// spent.
var consumeScript = redis.NewScript(`
local code = redis.call("HGET", KEYS[1], "code")
if not code then
  return {"not_found"}
end
if code == ARGV[1] then
  local name = redis.call("HGET", KEYS[1], "signer_name")
  local last4 = redis.call("HGET", KEYS[1], "last4")
  redis.call("DEL", KEYS[1])
  return {"ok", name, last4}
end
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if tonumber(ARGV[2]) > 0 and attempts >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return {"exhausted", tostring(attempts)}
end
return {"mismatch", tostring(attempts)}
`)

func NewRedisStore(addr, password string, db int, now func() time.Time) (*redisStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisStore{client: client, now: now}, nil
}

func challengeKey(transactionID string) string {
	return "esign:challenge:" + transactionID
}

func (r *redisStore) Put(ctx context.Context, ch domain.Challenge) error {
	key := challengeKey(ch.TransactionID)
	ttl := ch.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("challenge already expired")
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"code", ch.Code,
		"signer_name", ch.SignerName,
		"last4", ch.IdentifierLast4,
		"identifier_hash", ch.IdentifierHash,
		"attempts", 0,
	)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (r *redisStore) Consume(ctx context.Context, transactionID, code string, maxAttempts int) (domain.ChallengeDecision, error) {
	result, err := consumeScript.Run(ctx, r.client, []string{challengeKey(transactionID)}, code, maxAttempts).Result()
	if err != nil {
		return domain.ChallengeDecision{}, fmt.Errorf("consume challenge: %w", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) == 0 {
		return domain.ChallengeDecision{}, errors.New("unexpected redis challenge response")
	}
	outcome, _ := values[0].(string)
	switch outcome {
	case "ok":
		decision := domain.ChallengeDecision{Outcome: domain.ChallengeOK}
		if len(values) > 1 {
			decision.SignerName, _ = values[1].(string)
		}
		if len(values) > 2 {
			decision.IdentifierLast4, _ = values[2].(string)
		}
		return decision, nil
	case "not_found":
		return domain.ChallengeDecision{Outcome: domain.ChallengeNotFound}, nil
	case "mismatch", "exhausted":
		attempts := 0
		if len(values) > 1 {
			if raw, ok := values[1].(string); ok {
				attempts, _ = strconv.Atoi(raw)
			}
		}
		out := domain.ChallengeMismatch
		if outcome == "exhausted" {
			out = domain.ChallengeExhausted
		}
		return domain.ChallengeDecision{Outcome: out, Attempts: attempts}, nil
	default:
		return domain.ChallengeDecision{}, fmt.Errorf("unexpected challenge outcome %q", outcome)
	}
}
