package repository

import (
	"context"
	"time"

	"org-access-core/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Every write touches a single row.
type Repository interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// Create inserts the session. Returns ErrActiveOrganizationGone if ActiveOrgID lost its membership.
	Create(ctx context.Context, s *domain.Session) error
	// SetActiveOrganization sets the live session's active organization only if the session's user
	// is a member of orgID. Returns false when no row matched (session gone or membership missing).
	SetActiveOrganization(ctx context.Context, sessionID, orgID string, at time.Time) (bool, error)
	// AssignActiveOrganizationIfUnset sets orgID only when the session currently has no active
	// organization and the membership exists. Returns false when the condition did not hold.
	AssignActiveOrganizationIfUnset(ctx context.Context, sessionID, orgID string, at time.Time) (bool, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}
