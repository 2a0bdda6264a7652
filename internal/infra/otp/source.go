// Package otp holds the one-time-code sources and challenge stores backing
// identity verification.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeSource produces challenge codes. Disclose reports whether issued codes
// may be echoed back to the caller; that is only true for the deterministic
// source used outside production.
type CodeSource interface {
	Generate() (string, error)
	Disclose() bool
}

type RandomSource struct{}

func (RandomSource) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (RandomSource) Disclose() bool { return false }

// StaticSource always returns the same code. It stands in for the delivery
// path during development and tests.
type StaticSource struct {
	Code string
}

const DemoCode = "123456"

func (s StaticSource) Generate() (string, error) {
	if s.Code == "" {
		return DemoCode, nil
	}
	return s.Code, nil
}

func (StaticSource) Disclose() bool { return true }
