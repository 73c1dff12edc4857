package domain

import (
	"time"
)

// Membership links a user to an organization with a role.
// A (user, org) pair has at most one membership.
type Membership struct {
	ID        string
	UserID    string
	OrgID     string
	Role      Role
	CreatedAt time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// rank orders roles by privilege; unknown roles rank zero.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Valid reports whether r is one of the known membership roles.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// Satisfies reports whether r is at least min. An empty min is treated as RoleMember.
func (r Role) Satisfies(min Role) bool {
	if min == "" {
		min = RoleMember
	}
	return r.rank() > 0 && r.rank() >= min.rank()
}

// Earlier reports whether m sorts before other in default-organization order:
// earliest CreatedAt first, ties broken by ID ascending.
func (m *Membership) Earlier(other *Membership) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
