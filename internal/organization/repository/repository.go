package repository

import (
	"context"

	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	ListOrganizationsByUser(ctx context.Context, userID string) ([]*domain.Org, error)
	// CreateOrganizationWithOwner inserts the organization and the owner membership in one transaction.
	CreateOrganizationWithOwner(ctx context.Context, o *domain.Org, owner *membershipdomain.Membership) error
	DeleteOrganization(ctx context.Context, id string) error
	CountOrganizations(ctx context.Context) (int64, error)
}
