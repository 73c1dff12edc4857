// Package service implements session lifecycle: sign-in, session creation with a resolved active
// organization, switching the active organization, and sign-out.
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
	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/orgcontext"
	"org-access-core/backend/internal/security"
	"org-access-core/backend/internal/session/domain"
	"org-access-core/backend/internal/session/repository"
	"org-access-core/backend/internal/telemetry"
	userdomain "org-access-core/backend/internal/user/domain"
)

// Sentinel errors; the HTTP layer maps them to status codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotAMember         = errors.New("user is not a member of the organization")
	ErrInvalidOrgID       = errors.New("organization id is required")
)

// UserRepo is the minimal user repository needed by the session service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// MembershipRepo reads one membership live.
type MembershipRepo interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
}

// Resolver picks a user's default active organization.
type Resolver interface {
	ResolveActiveOrganization(ctx context.Context, userID string) (string, error)
}

// ClientMeta describes where a sign-in came from.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// CreateResult is a new session and its bearer token. The token is returned once and never stored.
// Degraded is true when the membership directory was unavailable and the session starts without
// an active organization.
type CreateResult struct {
	Session  *domain.Session
	Token    string
	Degraded bool
}

// Service implements session operations.
type Service struct {
	users       UserRepo
	sessions    repository.Repository
	memberships MembershipRepo
	resolver    Resolver
	hasher      *security.Hasher
	publisher   cache.Publisher
	audit       audit.AuditLogger
	events      telemetry.EventEmitter
	ttl         time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// Deps are the collaborators of Service. Publisher, Audit and Events may be nil.
type Deps struct {
	Users       UserRepo
	Sessions    repository.Repository
	Memberships MembershipRepo
	Resolver    Resolver
	Hasher      *security.Hasher
	Publisher   cache.Publisher
	Audit       audit.AuditLogger
	Events      telemetry.EventEmitter
	TTL         time.Duration
	Logger      *zap.Logger
}

// NewService returns a session Service.
func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auditLog := deps.Audit
	if auditLog == nil {
		auditLog = (*audit.Logger)(nil)
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &Service{
		users:       deps.Users,
		sessions:    deps.Sessions,
		memberships: deps.Memberships,
		resolver:    deps.Resolver,
		hasher:      deps.Hasher,
		publisher:   deps.Publisher,
		audit:       auditLog,
		events:      deps.Events,
		ttl:         ttl,
		now:         time.Now,
		log:         log,
	}
}

// SignIn verifies email and password and creates a session for the user.
func (s *Service) SignIn(ctx context.Context, email, password string, meta ClientMeta) (*CreateResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		_ = s.hasher.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	return s.CreateSession(ctx, user.ID, meta)
}

// CreateSession creates a session for userID with its active organization set by the resolver.
// A directory failure does not fail sign-in: the session is created without an active
// organization and the result is marked Degraded.
func (s *Service) CreateSession(ctx context.Context, userID string, meta ClientMeta) (*CreateResult, error) {
	degraded := false
	orgID, err := s.resolver.ResolveActiveOrganization(ctx, userID)
	if err != nil {
		if !errors.Is(err, orgcontext.ErrDirectoryUnavailable) {
			return nil, err
		}
		s.log.Warn("session: active organization unresolved, creating session without one",
			zap.String("user_id", userID), zap.Error(err))
		orgID, degraded = "", true
	}

	token, err := security.NewSessionToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		ID:          uuid.NewString(),
		TokenHash:   security.HashSessionToken(token),
		UserID:      userID,
		ActiveOrgID: orgID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.sessions.Create(ctx, sess)
	if errors.Is(err, repository.ErrActiveOrganizationGone) {
		// The membership was removed after resolution; start without an active organization.
		sess.ActiveOrgID = ""
		err = s.sessions.Create(ctx, sess)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    sess.ActiveOrgID,
		UserID:   userID,
		Action:   auditdomain.ActionSignIn,
		Resource: auditdomain.ResourceSession,
		Metadata: map[string]string{"session_id": sess.ID, "degraded": fmt.Sprint(degraded)},
	})
	s.emit(auditdomain.ActionSignIn, sess, nil)
	return &CreateResult{Session: sess, Token: token, Degraded: degraded}, nil
}

// GetSession returns the live session for token, or ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.sessions.GetByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !sess.Live(s.now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SwitchActiveOrganization makes orgID the session's active organization. The user must be a
// member of orgID; otherwise ErrNotAMember is returned and the session is unchanged. Switching to
// the organization that is already active succeeds and invalidates again.
func (s *Service) SwitchActiveOrganization(ctx context.Context, token, orgID string) error {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrgID
	}
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	m, err := s.memberships.GetMembershipByUserAndOrg(ctx, sess.UserID, orgID)
	if err != nil {
		return fmt.Errorf("%w: %w", orgcontext.ErrDirectoryUnavailable, err)
	}
	if m == nil {
		return ErrNotAMember
	}

	mutation := cache.OrganizationSwitched{
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		PreviousOrgID: sess.ActiveOrgID,
		OrgID:         orgID,
	}
	err = cache.Commit(ctx, s.publisher, mutation, func(ctx context.Context) error {
		ok, err := s.sessions.SetActiveOrganization(ctx, sess.ID, orgID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("set active organization: %w", err)
		}
		if !ok {
			return s.switchRejected(ctx, sess.ID)
		}
		return nil
	})
	if err != nil && !s.published(err) {
		return err
	}

	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    orgID,
		UserID:   sess.UserID,
		Action:   auditdomain.ActionOrgSwitched,
		Resource: auditdomain.ResourceSession,
		Metadata: map[string]string{"session_id": sess.ID, "previous_org_id": sess.ActiveOrgID},
	})
	sess.ActiveOrgID = orgID
	s.emit(auditdomain.ActionOrgSwitched, sess, map[string]string{"previous_org_id": mutation.PreviousOrgID})
	return nil
}

// switchRejected explains a refused switch write: the session ended concurrently, or the
// membership was removed between the check and the write.
func (s *Service) switchRejected(ctx context.Context, sessionID string) error {
	current, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	if current == nil || !current.Live(s.now()) {
		return ErrSessionNotFound
	}
	return ErrNotAMember
}

// SignOut revokes the session for token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, sess.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{
		OrgID:    sess.ActiveOrgID,
		UserID:   sess.UserID,
		Action:   auditdomain.ActionSignOut,
		Resource: auditdomain.ResourceSession,
		Metadata: map[string]string{"session_id": sess.ID},
	})
	s.emit(auditdomain.ActionSignOut, sess, nil)
	return nil
}

// ReconcileUser re-resolves every live session of userID that has no active organization, as
// happens when the membership backing it is deleted. Each session gets an
// ActiveOrganizationReassigned invalidation with previousOrgID as the organization it lost.
func (s *Service) ReconcileUser(ctx context.Context, userID, previousOrgID string) error {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	var orphans []*domain.Session
	for _, sess := range sessions {
		if !sess.HasActiveOrganization() {
			orphans = append(orphans, sess)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	orgID, err := s.resolver.ResolveActiveOrganization(ctx, userID)
	if err != nil {
		s.log.Warn("session: re-resolution failed, sessions left without active organization",
			zap.String("user_id", userID), zap.Error(err))
		orgID = ""
	}

	for _, sess := range orphans {
		if orgID != "" {
			ok, err := s.sessions.AssignActiveOrganizationIfUnset(ctx, sess.ID, orgID, s.now().UTC())
			if err != nil {
				return fmt.Errorf("assign active organization: %w", err)
			}
			if !ok {
				// A concurrent switch or removal won; it published its own invalidation.
				continue
			}
		}
		mutation := cache.ActiveOrganizationReassigned{
			SessionID:     sess.ID,
			UserID:        userID,
			PreviousOrgID: previousOrgID,
			OrgID:         orgID,
		}
		if err := cache.Announce(ctx, s.publisher, mutation); err != nil {
			s.published(err)
		}
		s.audit.LogEvent(ctx, audit.Event{
			OrgID:    orgID,
			UserID:   userID,
			Action:   auditdomain.ActionOrgReassigned,
			Resource: auditdomain.ResourceSession,
			Metadata: map[string]string{"session_id": sess.ID, "previous_org_id": previousOrgID},
		})
	}
	return nil
}

// published reports whether err only says the invalidation could not be published, logging it.
func (s *Service) published(err error) bool {
	if !errors.Is(err, cache.ErrPublishFailed) {
		return false
	}
	s.log.Warn("session: invalidation not published", zap.Error(err))
	return true
}

func (s *Service) emit(name string, sess *domain.Session, attrs map[string]string) {
	if s.events == nil {
		return
	}
	telemetry.EmitAsync(s.events, &telemetry.Event{
		Name:       name,
		OrgID:      sess.ActiveOrgID,
		UserID:     sess.UserID,
		SessionID:  sess.ID,
		Resource:   auditdomain.ResourceSession,
		Attributes: attrs,
		At:         s.now().UTC(),
	})
}
