// Package service implements user administration: reading users, changing global roles and
// the admin statistics view.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"org-access-core/backend/internal/audit"
	auditdomain "org-access-core/backend/internal/audit/domain"
	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/user/domain"
	"org-access-core/backend/internal/user/repository"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidRole  = errors.New("invalid global role")
)

// OrgCounter counts organizations for the stats view.
type OrgCounter interface {
	CountOrganizations(ctx context.Context) (int64, error)
}

// Stats is the admin.stats view.
type Stats struct {
	UsersByRole   map[domain.Role]int64 `json:"users_by_role"`
	Users         int64                 `json:"users"`
	Organizations int64                 `json:"organizations"`
}

// Service implements user operations.
type Service struct {
	users     repository.Repository
	orgs      OrgCounter
	publisher cache.Publisher
	audit     audit.AuditLogger
	log       *zap.Logger
}

// NewService returns a user Service. publisher and auditLog may be nil.
func NewService(users repository.Repository, orgs OrgCounter, publisher cache.Publisher, auditLog audit.AuditLogger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = (*audit.Logger)(nil)
	}
	return &Service{users: users, orgs: orgs, publisher: publisher, audit: auditLog, log: log}
}

// GetUser returns the user with id, or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ChangeRole sets userID's global role. Every cached users and admin view is invalidated.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	var updated *domain.User
	err := cache.Commit(ctx, s.publisher, cache.UserRoleChanged{UserID: userID, Role: string(role)}, func(ctx context.Context) error {
		var err error
		updated, err = s.users.UpdateRole(ctx, userID, role)
		return err
	})
	switch {
	case errors.Is(err, cache.ErrPublishFailed):
		s.log.Warn("user: invalidation not published", zap.Error(err))
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		UserID:   actorID,
		Action:   auditdomain.ActionUserRoleChanged,
		Resource: auditdomain.ResourceUser,
		Metadata: map[string]string{"target_user_id": userID, "role": string(role)},
	})
	return updated, nil
}

// Stats counts active users per global role and all organizations.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	st := &Stats{UsersByRole: byRole}
	for _, n := range byRole {
		st.Users += n
	}
	if s.orgs != nil {
		if st.Organizations, err = s.orgs.CountOrganizations(ctx); err != nil {
			return nil, fmt.Errorf("count organizations: %w", err)
		}
	}
	return st, nil
}
