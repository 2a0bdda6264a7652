package http

import (
	"net/http"
	"strings"

	"esignd/internal/domain"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// requireAuth resolves the caller principal. In "none" mode every request
// passes with an anonymous principal; in token mode a bearer token is
// mandatory.
func (s *Server) requireAuth(c *gin.Context) (domain.Principal, bool) {
	if s.cfg.AuthMode == "" || s.cfg.AuthMode == "none" {
		return domain.Principal{}, true
	}
	if s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "auth configuration error")
		return domain.Principal{}, false
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

// authorize runs the access policy for a document-scoped action. With no
// policy engine, or outside token mode, access is open.
func (s *Server) authorize(c *gin.Context, principal domain.Principal, action string, doc *domain.Document) bool {
	if s.policy == nil || s.cfg.AuthMode != "token" {
		return true
	}
	decision, err := s.policy.Evaluate(c.Request.Context(), domain.AccessInput{
		Subject:    principal.Subject,
		Roles:      principal.Roles,
		Action:     action,
		Owner:      doc.OwnerID,
		DocumentID: doc.ID,
	})
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "policy evaluation failed")
		return false
	}
	if !decision.Allow {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", strings.Join(decision.Reasons, "; "))
		return false
	}
	return true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

