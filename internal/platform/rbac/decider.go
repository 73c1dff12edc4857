package rbac

import (
	"context"

	membershipdomain "org-access-core/backend/internal/membership/domain"
	userdomain "org-access-core/backend/internal/user/domain"
)

// AccessRequest is the input to a Decider: who is asking for which organization at which role.
type AccessRequest struct {
	UserID     string
	GlobalRole userdomain.Role
	OrgID      string
	MinRole    membershipdomain.Role
}

// Decider decides whether a user's global role overrides an organization membership check.
// Implemented by BuiltinDecider and by the OPA evaluator in internal/policy/engine.
type Decider interface {
	AdminOverride(ctx context.Context, req AccessRequest) (bool, error)
}

// BuiltinDecider grants the override to global admins. When AdminOverridesOwner is false, admins
// still need a real membership for owner-only checks.
type BuiltinDecider struct {
	AdminOverridesOwner bool
}

// AdminOverride implements Decider.
func (d BuiltinDecider) AdminOverride(_ context.Context, req AccessRequest) (bool, error) {
	if req.GlobalRole != userdomain.RoleAdmin {
		return false, nil
	}
	if req.MinRole == membershipdomain.RoleOwner && !d.AdminOverridesOwner {
		return false, nil
	}
	return true, nil
}
