package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/membership/repository"
	orgdomain "org-access-core/backend/internal/organization/domain"
	userdomain "org-access-core/backend/internal/user/domain"
)

type memMembershipRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Membership
}

func newMemMembershipRepo(ms ...*domain.Membership) *memMembershipRepo {
	r := &memMembershipRepo{m: map[string]*domain.Membership{}}
	for _, m := range ms {
		r.m[m.UserID+":"+m.OrgID] = m
	}
	return r
}

func (r *memMembershipRepo) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[userID+":"+orgID], nil
}

func (r *memMembershipRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.m {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMembershipRepo) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.m {
		if m.OrgID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMembershipRepo) CreateMembership(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.UserID + ":" + m.OrgID
	if _, ok := r.m[key]; ok {
		return repository.ErrAlreadyMember
	}
	r.m[key] = m
	return nil
}

func (r *memMembershipRepo) DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + ":" + orgID
	if _, ok := r.m[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m, key)
	return nil
}

func (r *memMembershipRepo) UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.m[userID+":"+orgID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	cp.Role = role
	r.m[userID+":"+orgID] = &cp
	return &cp, nil
}

func (r *memMembershipRepo) CountOwnersByOrg(ctx context.Context, orgID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.m {
		if m.OrgID == orgID && m.Role == domain.RoleOwner {
			n++
		}
	}
	return n, nil
}

type memUsers map[string]*userdomain.User

func (u memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return u[id], nil
}

type memOrgs map[string]*orgdomain.Org

func (o memOrgs) GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error) {
	return o[id], nil
}

type mockReconciler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *mockReconciler) ReconcileUser(ctx context.Context, userID, previousOrgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID+":"+previousOrgID)
	return r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []cache.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev cache.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func membership(userID, orgID string, role domain.Role) *domain.Membership {
	return &domain.Membership{ID: "m-" + userID + "-" + orgID, UserID: userID, OrgID: orgID, Role: role, CreatedAt: t0}
}

type fixture struct {
	repo       *memMembershipRepo
	reconciler *mockReconciler
	pub        *recordingPublisher
	svc        *Service
}

func newFixture(ms ...*domain.Membership) *fixture {
	f := &fixture{
		repo:       newMemMembershipRepo(ms...),
		reconciler: &mockReconciler{},
		pub:        &recordingPublisher{},
	}
	f.svc = NewService(Deps{
		Memberships: f.repo,
		Users:       memUsers{"alice": {ID: "alice"}, "bob": {ID: "bob"}, "carol": {ID: "carol"}},
		Orgs:        memOrgs{"org-1": {ID: "org-1"}, "org-2": {ID: "org-2"}},
		Reconciler:  f.reconciler,
		Publisher:   f.pub,
	})
	return f
}

func TestAddMember(t *testing.T) {
	tests := []struct {
		name    string
		orgID   string
		userID  string
		role    domain.Role
		wantErr error
	}{
		{"default role", "org-1", "carol", "", nil},
		{"admin role", "org-1", "carol", domain.RoleAdmin, nil},
		{"invalid role", "org-1", "carol", "superuser", ErrInvalidRole},
		{"unknown user", "org-1", "dave", domain.RoleMember, ErrUserNotFound},
		{"unknown org", "org-9", "carol", domain.RoleMember, ErrOrganizationNotFound},
		{"already member", "org-1", "alice", domain.RoleMember, ErrAlreadyMember},
		{"missing ids", "", "carol", domain.RoleMember, ErrMissingArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(membership("alice", "org-1", domain.RoleOwner))
			m, err := f.svc.AddMember(context.Background(), "alice", tt.orgID, tt.userID, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddMember error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(f.pub.events) != 0 {
					t.Errorf("published %d events on failure", len(f.pub.events))
				}
				return
			}
			wantRole := tt.role
			if wantRole == "" {
				wantRole = domain.RoleMember
			}
			if m.Role != wantRole || m.ID == "" {
				t.Errorf("membership = %+v", m)
			}
			if len(f.pub.events) != 1 || f.pub.events[0].Mutation != "membership_added" {
				t.Errorf("events = %+v", f.pub.events)
			}
		})
	}
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(
		membership("alice", "org-1", domain.RoleOwner),
		membership("bob", "org-1", domain.RoleMember),
		membership("bob", "org-2", domain.RoleMember),
	)
	ctx := context.Background()

	if err := f.svc.RemoveMember(ctx, "alice", "org-1", "bob"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if m, _ := f.repo.GetMembershipByUserAndOrg(ctx, "bob", "org-1"); m != nil {
		t.Error("membership still present")
	}
	if m, _ := f.repo.GetMembershipByUserAndOrg(ctx, "bob", "org-2"); m == nil {
		t.Error("membership in org-2 removed")
	}
	if len(f.pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.pub.events))
	}
	ev := f.pub.events[0]
	if ev.Mutation != "membership_removed" || len(ev.Targets) != 1 || ev.Targets[0].String() != "team.org-1.members" {
		t.Errorf("event = %+v", ev)
	}
	if len(f.reconciler.calls) != 1 || f.reconciler.calls[0] != "bob:org-1" {
		t.Errorf("reconcile calls = %v", f.reconciler.calls)
	}

	if err := f.svc.RemoveMember(ctx, "alice", "org-1", "bob"); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("second RemoveMember error = %v, want ErrMembershipNotFound", err)
	}
}

func TestRemoveMember_LastOwner(t *testing.T) {
	f := newFixture(membership("alice", "org-1", domain.RoleOwner), membership("bob", "org-1", domain.RoleAdmin))
	if err := f.svc.RemoveMember(context.Background(), "alice", "org-1", "alice"); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("error = %v, want ErrLastOwner", err)
	}
	if len(f.pub.events) != 0 || len(f.reconciler.calls) != 0 {
		t.Error("rejected removal had side effects")
	}
}

func TestRemoveMember_ReconcileFailureIsNotReturned(t *testing.T) {
	f := newFixture(membership("alice", "org-1", domain.RoleOwner), membership("bob", "org-1", domain.RoleMember))
	f.reconciler.err = errors.New("db down")
	f.pub.err = errors.New("broker down")
	if err := f.svc.RemoveMember(context.Background(), "alice", "org-1", "bob"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if m, _ := f.repo.GetMembershipByUserAndOrg(context.Background(), "bob", "org-1"); m != nil {
		t.Error("membership still present")
	}
}

func TestUpdateRole(t *testing.T) {
	tests := []struct {
		name    string
		seed    []*domain.Membership
		userID  string
		role    domain.Role
		wantErr error
	}{
		{
			name:   "promote member",
			seed:   []*domain.Membership{membership("alice", "org-1", domain.RoleOwner), membership("bob", "org-1", domain.RoleMember)},
			userID: "bob",
			role:   domain.RoleAdmin,
		},
		{
			name:    "demote last owner",
			seed:    []*domain.Membership{membership("alice", "org-1", domain.RoleOwner)},
			userID:  "alice",
			role:    domain.RoleAdmin,
			wantErr: ErrLastOwner,
		},
		{
			name:   "demote one of two owners",
			seed:   []*domain.Membership{membership("alice", "org-1", domain.RoleOwner), membership("bob", "org-1", domain.RoleOwner)},
			userID: "alice",
			role:   domain.RoleMember,
		},
		{
			name:    "not a member",
			seed:    []*domain.Membership{membership("alice", "org-1", domain.RoleOwner)},
			userID:  "carol",
			role:    domain.RoleAdmin,
			wantErr: ErrMembershipNotFound,
		},
		{
			name:    "invalid role",
			seed:    []*domain.Membership{membership("alice", "org-1", domain.RoleOwner)},
			userID:  "alice",
			role:    "root",
			wantErr: ErrInvalidRole,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.seed...)
			m, err := f.svc.UpdateRole(context.Background(), "alice", "org-1", tt.userID, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateRole error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if m.Role != tt.role {
				t.Errorf("role = %q, want %q", m.Role, tt.role)
			}
			if len(f.pub.events) != 1 || f.pub.events[0].Mutation != "membership_role_changed" {
				t.Errorf("events = %+v", f.pub.events)
			}
		})
	}
}

func TestListMembers(t *testing.T) {
	f := newFixture(
		membership("alice", "org-1", domain.RoleOwner),
		membership("bob", "org-1", domain.RoleMember),
		membership("bob", "org-2", domain.RoleMember),
	)
	got, err := f.svc.ListMembers(context.Background(), "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d members, want 2", len(got))
	}
}
