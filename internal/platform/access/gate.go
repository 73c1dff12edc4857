// Package access runs the authorization guard for HTTP handlers and writes the rejection.
package access

import (
	"context"
	"net/http"
	"strings"

	"org-access-core/backend/internal/audit"
	auditdomain "org-access-core/backend/internal/audit/domain"
	"org-access-core/backend/internal/platform/httperr"
	"org-access-core/backend/internal/platform/rbac"
	"org-access-core/backend/internal/server/middleware"
)

// Authorizer is implemented by *rbac.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, creds rbac.Credentials, reqs ...rbac.Requirement) (*rbac.Authorization, error)
}

// Gate authorizes requests with explicit credentials and records denials.
type Gate struct {
	guard Authorizer
	audit audit.AuditLogger
}

// NewGate returns a Gate. auditLog may be nil.
func NewGate(guard Authorizer, auditLog audit.AuditLogger) *Gate {
	if auditLog == nil {
		auditLog = (*audit.Logger)(nil)
	}
	return &Gate{guard: guard, audit: auditLog}
}

// Check authorizes r against reqs. On failure it writes 401 or 403 and returns false.
func (g *Gate) Check(w http.ResponseWriter, r *http.Request, reqs ...rbac.Requirement) (*rbac.Authorization, bool) {
	authz, err := g.guard.Authorize(r.Context(), middleware.CredentialsFromRequest(r), reqs...)
	if err == nil {
		return authz, true
	}
	if reason := rbac.Reason(err); reason != rbac.ReasonMissingCredentials {
		g.audit.LogEvent(r.Context(), audit.Event{
			OrgID:    orgFromRequirements(reqs),
			Action:   auditdomain.ActionAccessDenied,
			Resource: resource(r),
			Metadata: map[string]string{
				"reason": reason,
				"method": r.Method,
				"path":   r.URL.Path,
			},
		})
	}
	httperr.Write(w, r, err)
	return nil, false
}

// Recheck re-runs the guard for a long-lived request that already passed Check. Nothing is
// written or audited; the caller decides how to end the request.
func (g *Gate) Recheck(r *http.Request, reqs ...rbac.Requirement) error {
	_, err := g.guard.Authorize(r.Context(), middleware.CredentialsFromRequest(r), reqs...)
	return err
}

func orgFromRequirements(reqs []rbac.Requirement) string {
	for _, req := range reqs {
		if oa, ok := req.(rbac.RequireOrganizationAccess); ok && oa.OrgID != "" {
			return oa.OrgID
		}
	}
	return ""
}

func resource(r *http.Request) string {
	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/organizations"):
		return auditdomain.ResourceOrganization
	case strings.HasPrefix(r.URL.Path, "/v1/admin"):
		return auditdomain.ResourceUser
	default:
		return auditdomain.ResourceSession
	}
}
