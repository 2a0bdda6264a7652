// Package statictoken verifies bearer tokens against a static token table,
// standing in for the external identity provider.
package statictoken

import (
	"context"
	"crypto/subtle"
	"strings"

	"esignd/internal/domain"
)

type Authenticator struct {
	entries []entry
}

type entry struct {
	token     string
	principal domain.Principal
}

// New parses a comma separated token table of token:subject[:role] entries.
func New(spec string) *Authenticator {
	a := &Authenticator{}
	for _, raw := range strings.Split(spec, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		principal := domain.Principal{Subject: parts[1]}
		if len(parts) == 3 && parts[2] != "" {
			principal.Roles = []string{parts[2]}
		}
		a.entries = append(a.entries, entry{token: parts[0], principal: principal})
	}
	return a
}

func (a *Authenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare([]byte(token), []byte(e.token)) == 1 {
			return e.principal, nil
		}
	}
	return domain.Principal{}, domain.ErrUnauthorized
}
