package repository

import (
	"context"

	"org-access-core/backend/internal/audit/domain"
)

// Repository is the append-only audit sink.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}
