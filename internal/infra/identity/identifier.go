// Package identity normalizes and validates national-ID style signer
// identifiers: 12 digits after stripping separators, first digit 2-9.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"esignd/internal/domain"
)

// Normalize strips spaces and hyphens and validates the structural rule.
// Returns the bare 12-digit identifier or ErrInvalidIdentifier.
func Normalize(raw string) (string, error) {
	id := strip(raw)
	if len(id) != 12 {
		return "", domain.ErrInvalidIdentifier
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", domain.ErrInvalidIdentifier
		}
	}
	if id[0] == '0' || id[0] == '1' {
		return "", domain.ErrInvalidIdentifier
	}
	return id, nil
}

// Mask renders an identifier showing only the last 4 digits.
func Mask(raw string) string {
	id := strip(raw)
	if len(id) != 12 {
		return "XXXX-XXXX-XXXX"
	}
	return "XXXX-XXXX-" + id[8:]
}

// Format renders a normalized identifier in NNNN-NNNN-NNNN groups.
func Format(raw string) string {
	id := strip(raw)
	if len(id) != 12 {
		return id
	}
	return id[0:4] + "-" + id[4:8] + "-" + id[8:12]
}

// Hash returns the sha256 hex digest of a normalized identifier. The plain
// identifier is never persisted.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Last4 returns the trailing 4 digits of a normalized identifier.
func Last4(normalized string) string {
	if len(normalized) < 4 {
		return normalized
	}
	return normalized[len(normalized)-4:]
}

func strip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
