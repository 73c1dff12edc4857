package rbac

import (
	membershipdomain "org-access-core/backend/internal/membership/domain"
	userdomain "org-access-core/backend/internal/user/domain"
)

// Requirement is one condition checked by Guard.Authorize. The set is closed: only the types in
// this file implement it.
type Requirement interface {
	requirement()
}

// RequireAuthenticated passes for any live session of an active user. Authorize always checks
// this; the type exists so handlers can say so explicitly.
type RequireAuthenticated struct{}

// RequireRole requires the user's global role to equal Role, regardless of organization.
type RequireRole struct {
	Role userdomain.Role
}

// RequireOrganizationAccess requires membership of OrgID with at least MinRole, unless the
// access decider grants an admin override. An empty OrgID means the session's active
// organization; an empty MinRole means member.
type RequireOrganizationAccess struct {
	OrgID   string
	MinRole membershipdomain.Role
}

// RequireActiveOrganization requires the session to have an active organization.
type RequireActiveOrganization struct{}

func (RequireAuthenticated) requirement()      {}
func (RequireRole) requirement()               {}
func (RequireOrganizationAccess) requirement() {}
func (RequireActiveOrganization) requirement() {}

// RequireAdmin is shorthand for RequireRole{Role: admin}.
func RequireAdmin() RequireRole {
	return RequireRole{Role: userdomain.RoleAdmin}
}
