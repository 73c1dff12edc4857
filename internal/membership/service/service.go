// Package service manages organization memberships. Every write publishes its cache
// invalidation after it is durable; removals also repair sessions that lost their active
// organization.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"org-access-core/backend/internal/audit"
	auditdomain "org-access-core/backend/internal/audit/domain"
	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/membership/repository"
	orgdomain "org-access-core/backend/internal/organization/domain"
	userdomain "org-access-core/backend/internal/user/domain"
)

var (
	ErrInvalidRole          = errors.New("invalid membership role")
	ErrLastOwner            = errors.New("organization must keep at least one owner")
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrAlreadyMember        = repository.ErrAlreadyMember
	ErrMissingArgument      = errors.New("user id and organization id are required")
)

// UserLookup resolves a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// OrgLookup resolves an organization by id.
type OrgLookup interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
}

// SessionReconciler re-resolves sessions left without an active organization.
type SessionReconciler interface {
	ReconcileUser(ctx context.Context, userID, previousOrgID string) error
}

// Deps are the collaborators of Service. Reconciler, Publisher and Audit may be nil.
type Deps struct {
	Memberships repository.Repository
	Users       UserLookup
	Orgs        OrgLookup
	Reconciler  SessionReconciler
	Publisher   cache.Publisher
	Audit       audit.AuditLogger
	Logger      *zap.Logger
}

// Service implements membership operations. Callers authorize first; Service enforces only
// membership invariants.
type Service struct {
	memberships repository.Repository
	users       UserLookup
	orgs        OrgLookup
	reconciler  SessionReconciler
	publisher   cache.Publisher
	audit       audit.AuditLogger
	now         func() time.Time
	log         *zap.Logger
}

// NewService returns a membership Service.
func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auditLog := deps.Audit
	if auditLog == nil {
		auditLog = (*audit.Logger)(nil)
	}
	return &Service{
		memberships: deps.Memberships,
		users:       deps.Users,
		orgs:        deps.Orgs,
		reconciler:  deps.Reconciler,
		publisher:   deps.Publisher,
		audit:       auditLog,
		now:         time.Now,
		log:         log,
	}
}

// ListMembers returns the organization's memberships, earliest first.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	members, err := s.memberships.ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember adds userID to orgID with role.
func (s *Service) AddMember(ctx context.Context, actorID, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	orgID, userID = strings.TrimSpace(orgID), strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return nil, ErrMissingArgument
	}
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := s.ensureSubjects(ctx, orgID, userID); err != nil {
		return nil, err
	}

	m := &domain.Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		OrgID:     orgID,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	err := cache.Commit(ctx, s.publisher, cache.MembershipAdded{OrgID: orgID, UserID: userID}, func(ctx context.Context) error {
		return s.memberships.CreateMembership(ctx, m)
	})
	if err = s.settle(err); err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			return nil, err
		}
		return nil, fmt.Errorf("create membership: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    orgID,
		UserID:   actorID,
		Action:   auditdomain.ActionMemberAdded,
		Resource: auditdomain.ResourceOrganization,
		Metadata: map[string]string{"member_id": userID, "role": string(role)},
	})
	return m, nil
}

// RemoveMember deletes the membership of userID in orgID. Sessions of userID that were active
// in orgID are re-resolved to another organization, or left without one.
func (s *Service) RemoveMember(ctx context.Context, actorID, orgID, userID string) error {
	m, err := s.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}
	if m == nil {
		return ErrMembershipNotFound
	}
	if m.Role == domain.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, orgID); err != nil {
			return err
		}
	}

	err = cache.Commit(ctx, s.publisher, cache.MembershipRemoved{OrgID: orgID, UserID: userID}, func(ctx context.Context) error {
		return s.memberships.DeleteByUserAndOrg(ctx, userID, orgID)
	})
	if err = s.settle(err); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("delete membership: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    orgID,
		UserID:   actorID,
		Action:   auditdomain.ActionMemberRemoved,
		Resource: auditdomain.ResourceOrganization,
		Metadata: map[string]string{"member_id": userID, "role": string(m.Role)},
	})
	s.reconcile(ctx, userID, orgID)
	return nil
}

// UpdateRole changes userID's role in orgID. Demoting the last owner fails with ErrLastOwner.
func (s *Service) UpdateRole(ctx context.Context, actorID, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	current, err := s.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if current == nil {
		return nil, ErrMembershipNotFound
	}
	if current.Role == domain.RoleOwner && role != domain.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, orgID); err != nil {
			return nil, err
		}
	}

	var updated *domain.Membership
	mutation := cache.MembershipRoleChanged{OrgID: orgID, UserID: userID, Role: string(role)}
	err = cache.Commit(ctx, s.publisher, mutation, func(ctx context.Context) error {
		var err error
		updated, err = s.memberships.UpdateRole(ctx, userID, orgID, role)
		return err
	})
	if err = s.settle(err); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    orgID,
		UserID:   actorID,
		Action:   auditdomain.ActionMemberRoleChanged,
		Resource: auditdomain.ResourceOrganization,
		Metadata: map[string]string{"member_id": userID, "from": string(current.Role), "to": string(role)},
	})
	return updated, nil
}

func (s *Service) ensureSubjects(ctx context.Context, orgID, userID string) error {
	if s.orgs != nil {
		org, err := s.orgs.GetOrganizationByID(ctx, orgID)
		if err != nil {
			return fmt.Errorf("get organization: %w", err)
		}
		if org == nil {
			return ErrOrganizationNotFound
		}
	}
	if s.users != nil {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
	}
	return nil
}

func (s *Service) ensureAnotherOwner(ctx context.Context, orgID string) error {
	n, err := s.memberships.CountOwnersByOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if n <= 1 {
		return ErrLastOwner
	}
	return nil
}

// settle drops a publish failure after a durable write, logging it.
func (s *Service) settle(err error) error {
	if errors.Is(err, cache.ErrPublishFailed) {
		s.log.Warn("membership: invalidation not published", zap.Error(err))
		return nil
	}
	return err
}

func (s *Service) reconcile(ctx context.Context, userID, orgID string) {
	if s.reconciler == nil {
		return
	}
	if err := s.reconciler.ReconcileUser(ctx, userID, orgID); err != nil {
		s.log.Warn("membership: session reconciliation failed",
			zap.String("user_id", userID), zap.String("org_id", orgID), zap.Error(err))
	}
}
