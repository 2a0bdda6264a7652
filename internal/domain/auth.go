package domain

import "context"

type Principal struct {
	Subject string
	Roles   []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator verifies an opaque bearer token with an external identity
// collaborator and returns the caller principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// AccessInput is the policy input for a document-scoped operation.
type AccessInput struct {
	Subject    string   `json:"subject"`
	Roles      []string `json:"roles"`
	Action     string   `json:"action"`
	Owner      string   `json:"owner"`
	DocumentID string   `json:"document_id"`
}

type AccessDecision struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons,omitempty"`
}

// AccessPolicy decides whether a caller may perform an action on a document.
type AccessPolicy interface {
	Evaluate(ctx context.Context, input AccessInput) (AccessDecision, error)
}
