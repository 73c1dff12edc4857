package repository

import (
	"context"

	"org-access-core/backend/internal/membership/domain"
)

// Repository defines persistence for memberships. It is the membership directory consulted by the
// context resolver and the authorization guard; implementations must read live state (no caching).
type Repository interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// DeleteByUserAndOrg removes the membership. Returns ErrNotFound when no row matched.
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
	CountOwnersByOrg(ctx context.Context, orgID string) (int64, error)
}
