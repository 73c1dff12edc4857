// Package rbac is the authorization guard: every protected operation calls Guard.Authorize with
// the caller's explicit credentials and the requirements it needs.
package rbac

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/security"
	sessiondomain "org-access-core/backend/internal/session/domain"
	"org-access-core/backend/internal/telemetry/metrics"
	userdomain "org-access-core/backend/internal/user/domain"
)

// Credentials are what the caller presented. The guard reads nothing else from the request.
type Credentials struct {
	SessionToken string
}

// SessionLookup finds a session by the hash of its bearer token. Returns nil, nil when absent.
type SessionLookup interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*sessiondomain.Session, error)
}

// UserLookup loads a user by id. Returns nil, nil when absent.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// MembershipLookup reads one membership live. Returns nil, nil when absent.
type MembershipLookup interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
}

// Authorization is the result of a successful Authorize call.
type Authorization struct {
	User                 *userdomain.User
	Session              *sessiondomain.Session
	ActiveOrganizationID string
	// Memberships holds each membership read while checking organization access, in check order.
	Memberships []*membershipdomain.Membership
	// AdminOverride is true when at least one organization check passed through the decider.
	AdminOverride bool
}

// Membership returns the checked membership for orgID, or nil.
func (a *Authorization) Membership(orgID string) *membershipdomain.Membership {
	if a == nil {
		return nil
	}
	for _, m := range a.Memberships {
		if m.OrgID == orgID {
			return m
		}
	}
	return nil
}

// Guard evaluates requirements against live session, user and membership state. It keeps no
// per-request state and has no side effects beyond metrics and spans.
type Guard struct {
	sessions    SessionLookup
	users       UserLookup
	memberships MembershipLookup
	decider     Decider
	timeout     time.Duration
	now         func() time.Time
	metrics     *metrics.Instruments
	tracer      trace.Tracer
}

// Option configures a Guard.
type Option func(*Guard)

// WithDirectoryTimeout bounds each user and membership read.
func WithDirectoryTimeout(d time.Duration) Option {
	return func(g *Guard) { g.timeout = d }
}

// WithClock overrides time.Now for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithMetrics records every decision on inst.
func WithMetrics(inst *metrics.Instruments) Option {
	return func(g *Guard) { g.metrics = inst }
}

// NewGuard returns a Guard. A nil decider grants admins the override for every organization check.
func NewGuard(sessions SessionLookup, users UserLookup, memberships MembershipLookup, decider Decider, opts ...Option) *Guard {
	if decider == nil {
		decider = BuiltinDecider{AdminOverridesOwner: true}
	}
	g := &Guard{
		sessions:    sessions,
		users:       users,
		memberships: memberships,
		decider:     decider,
		now:         time.Now,
		tracer:      otel.Tracer("org-access-core/rbac"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize resolves the session from creds and checks reqs in order, stopping at the first
// failure. Errors are *Error values matching ErrUnauthenticated or ErrForbidden.
func (g *Guard) Authorize(ctx context.Context, creds Credentials, reqs ...Requirement) (*Authorization, error) {
	ctx, span := g.tracer.Start(ctx, "rbac.Authorize", trace.WithAttributes(attribute.Int("rbac.requirements", len(reqs))))
	defer span.End()

	auth, err := g.authorize(ctx, creds, reqs)
	if err != nil {
		reason := Reason(err)
		span.SetAttributes(attribute.String("rbac.outcome", metrics.OutcomeDenied), attribute.String("rbac.reason", reason))
		span.SetStatus(codes.Error, reason)
		g.metrics.RecordDecision(ctx, metrics.OutcomeDenied, reason)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("rbac.outcome", metrics.OutcomeAllowed),
		attribute.String("user.id", auth.User.ID),
		attribute.Bool("rbac.admin_override", auth.AdminOverride),
	)
	g.metrics.RecordDecision(ctx, metrics.OutcomeAllowed, "")
	return auth, nil
}

func (g *Guard) authorize(ctx context.Context, creds Credentials, reqs []Requirement) (*Authorization, error) {
	sess, err := g.session(ctx, creds)
	if err != nil {
		return nil, err
	}
	user, err := g.user(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	auth := &Authorization{
		User:                 user,
		Session:              sess,
		ActiveOrganizationID: sess.ActiveOrgID,
	}
	for _, req := range reqs {
		if err := g.check(ctx, auth, req); err != nil {
			return nil, err
		}
	}
	return auth, nil
}

func (g *Guard) session(ctx context.Context, creds Credentials) (*sessiondomain.Session, error) {
	if creds.SessionToken == "" {
		return nil, unauthenticated(ReasonMissingCredentials, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, unauthenticated(ReasonSessionUnavailable, err)
	}
	sess, err := g.sessions.GetByTokenHash(ctx, security.HashSessionToken(creds.SessionToken))
	if err != nil {
		return nil, unauthenticated(ReasonSessionUnavailable, err)
	}
	switch {
	case sess == nil:
		return nil, unauthenticated(ReasonUnknownSession, nil)
	case sess.RevokedAt != nil:
		return nil, unauthenticated(ReasonSessionRevoked, nil)
	case !sess.Live(g.now()):
		return nil, unauthenticated(ReasonSessionExpired, nil)
	}
	return sess, nil
}

func (g *Guard) user(ctx context.Context, userID string) (*userdomain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, forbidden(ReasonDirectoryUnavailable, err)
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, forbidden(ReasonDirectoryUnavailable, err)
	}
	if user == nil {
		return nil, unauthenticated(ReasonUnknownUser, nil)
	}
	if user.Status == userdomain.UserStatusDisabled {
		return nil, unauthenticated(ReasonUserDisabled, nil)
	}
	return user, nil
}

func (g *Guard) check(ctx context.Context, auth *Authorization, req Requirement) error {
	switch r := req.(type) {
	case RequireAuthenticated:
		return nil
	case RequireRole:
		if auth.User.Role == r.Role {
			return nil
		}
		if r.Role == userdomain.RoleAdmin {
			return forbidden(ReasonNotAdmin, nil)
		}
		return forbidden(ReasonMissingRole, nil)
	case RequireActiveOrganization:
		if !auth.Session.HasActiveOrganization() {
			return forbidden(ReasonNoActiveOrganization, nil)
		}
		return nil
	case RequireOrganizationAccess:
		return g.checkOrganization(ctx, auth, r)
	}
	return forbidden(ReasonUnknownRequirement, nil)
}

func (g *Guard) checkOrganization(ctx context.Context, auth *Authorization, r RequireOrganizationAccess) error {
	orgID := r.OrgID
	if orgID == "" {
		if !auth.Session.HasActiveOrganization() {
			return forbidden(ReasonNoActiveOrganization, nil)
		}
		orgID = auth.Session.ActiveOrgID
	}

	override, err := g.decider.AdminOverride(ctx, AccessRequest{
		UserID:     auth.User.ID,
		GlobalRole: auth.User.Role,
		OrgID:      orgID,
		MinRole:    r.MinRole,
	})
	if err != nil {
		return forbidden(ReasonPolicyUnavailable, err)
	}
	if override {
		auth.AdminOverride = true
		return nil
	}

	if err := ctx.Err(); err != nil {
		return forbidden(ReasonDirectoryUnavailable, err)
	}
	lookupCtx, cancel := g.withTimeout(ctx)
	defer cancel()
	m, err := g.memberships.GetMembershipByUserAndOrg(lookupCtx, auth.User.ID, orgID)
	if err != nil {
		return forbidden(ReasonDirectoryUnavailable, err)
	}
	if m == nil {
		return forbidden(ReasonNotMember, nil)
	}
	if !m.Role.Satisfies(r.MinRole) {
		return forbidden(ReasonInsufficientRole, nil)
	}
	auth.Memberships = append(auth.Memberships, m)
	return nil
}

// CanSeeOrganization reports whether userID currently belongs to orgID or passes the admin
// override for it. Unknown and disabled users see nothing. Used to scope invalidation delivery.
func (g *Guard) CanSeeOrganization(ctx context.Context, userID, orgID string) (bool, error) {
	user, err := g.user(ctx, userID)
	if errors.Is(err, ErrUnauthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	override, err := g.decider.AdminOverride(ctx, AccessRequest{
		UserID:     user.ID,
		GlobalRole: user.Role,
		OrgID:      orgID,
		MinRole:    membershipdomain.RoleMember,
	})
	if err != nil {
		return false, err
	}
	if override {
		return true, nil
	}
	lookupCtx, cancel := g.withTimeout(ctx)
	defer cancel()
	m, err := g.memberships.GetMembershipByUserAndOrg(lookupCtx, userID, orgID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (g *Guard) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}
