package repository

import (
	"context"

	"org-access-core/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateRole sets the global role. Returns ErrNotFound when the user does not exist.
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	CountByRole(ctx context.Context) (map[domain.Role]int64, error)
}
