package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// Actions recorded by the access core.
const (
	ActionSignIn            = "sign_in"
	ActionSignOut           = "sign_out"
	ActionOrgSwitched       = "active_org_switched"
	ActionOrgReassigned     = "active_org_reassigned"
	ActionMemberAdded       = "user_added"
	ActionMemberRemoved     = "user_removed"
	ActionMemberRoleChanged = "role_changed"
	ActionUserRoleChanged   = "global_role_changed"
	ActionOrgCreated        = "create"
	ActionOrgDeleted        = "delete"
	ActionAccessDenied      = "access_denied"
)

// Resources recorded by the access core.
const (
	ResourceSession      = "session"
	ResourceUser         = "user"
	ResourceOrganization = "organization"
)
