// Package service implements organization create, list and delete.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"org-access-core/backend/internal/audit"
	auditdomain "org-access-core/backend/internal/audit/domain"
	"org-access-core/backend/internal/cache"
	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/organization/domain"
	"org-access-core/backend/internal/organization/repository"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrInvalidOrganization  = errors.New("invalid organization")
)

// MemberLister lists an organization's memberships.
type MemberLister interface {
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*membershipdomain.Membership, error)
}

// SessionReconciler re-resolves sessions left without an active organization.
type SessionReconciler interface {
	ReconcileUser(ctx context.Context, userID, previousOrgID string) error
}

// Service implements organization operations.
type Service struct {
	orgs       repository.Repository
	members    MemberLister
	reconciler SessionReconciler
	publisher  cache.Publisher
	audit      audit.AuditLogger
	now        func() time.Time
	log        *zap.Logger
}

// NewService returns an organization Service. reconciler, publisher and auditLog may be nil.
func NewService(orgs repository.Repository, members MemberLister, reconciler SessionReconciler, publisher cache.Publisher, auditLog audit.AuditLogger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = (*audit.Logger)(nil)
	}
	return &Service{
		orgs:       orgs,
		members:    members,
		reconciler: reconciler,
		publisher:  publisher,
		audit:      auditLog,
		now:        time.Now,
		log:        log,
	}
}

// Get returns the organization with id, or ErrOrganizationNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Org, error) {
	o, err := s.orgs.GetOrganizationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if o == nil {
		return nil, ErrOrganizationNotFound
	}
	return o, nil
}

// ListForUser returns the organizations userID belongs to, in membership order.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*domain.Org, error) {
	orgs, err := s.orgs.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

// Create makes an organization named name with ownerID as its owner.
func (s *Service) Create(ctx context.Context, ownerID, name string) (*domain.Org, error) {
	now := s.now().UTC()
	o := &domain.Org{ID: uuid.NewString(), Name: name, CreatedAt: now}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrganization, err)
	}
	owner := &membershipdomain.Membership{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		OrgID:     o.ID,
		Role:      membershipdomain.RoleOwner,
		CreatedAt: now,
	}
	err := cache.Commit(ctx, s.publisher, cache.OrganizationCreated{OrgID: o.ID, OwnerID: ownerID}, func(ctx context.Context) error {
		return s.orgs.CreateOrganizationWithOwner(ctx, o, owner)
	})
	if err = s.settle(err); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    o.ID,
		UserID:   ownerID,
		Action:   auditdomain.ActionOrgCreated,
		Resource: auditdomain.ResourceOrganization,
		Metadata: map[string]string{"name": o.Name},
	})
	return o, nil
}

// Delete removes the organization and its memberships. Sessions active in it are re-resolved.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	members, err := s.members.ListMembershipsByOrg(ctx, id)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	err = cache.Commit(ctx, s.publisher, cache.OrganizationDeleted{OrgID: id}, func(ctx context.Context) error {
		return s.orgs.DeleteOrganization(ctx, id)
	})
	if err = s.settle(err); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrganizationNotFound
		}
		return fmt.Errorf("delete organization: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    id,
		UserID:   actorID,
		Action:   auditdomain.ActionOrgDeleted,
		Resource: auditdomain.ResourceOrganization,
		Metadata: map[string]string{"members": fmt.Sprint(len(members))},
	})
	for _, m := range members {
		_ = s.settle(cache.Announce(ctx, s.publisher, cache.OrganizationAccessRevoked{OrgID: id, UserID: m.UserID}))
		if s.reconciler == nil {
			continue
		}
		if err := s.reconciler.ReconcileUser(ctx, m.UserID, id); err != nil {
			s.log.Warn("organization: session reconciliation failed",
				zap.String("user_id", m.UserID), zap.String("org_id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) settle(err error) error {
	if errors.Is(err, cache.ErrPublishFailed) {
		s.log.Warn("organization: invalidation not published", zap.Error(err))
		return nil
	}
	return err
}
