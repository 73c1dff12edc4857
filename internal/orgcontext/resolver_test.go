package orgcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"org-access-core/backend/internal/membership/domain"
)

type mockDirectory struct {
	mu          sync.Mutex
	memberships []*domain.Membership
	err         error
	block       bool
	calls       int
}

func (m *mockDirectory) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	m.mu.Lock()
	m.calls++
	block, err := m.block, m.err
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Membership
	for _, mem := range m.memberships {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func TestResolveActiveOrganization(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		name        string
		memberships []*domain.Membership
		want        string
	}{
		{"no memberships", nil, ""},
		{
			"single membership",
			[]*domain.Membership{{ID: "m1", UserID: "u1", OrgID: "org-a", CreatedAt: t0}},
			"org-a",
		},
		{
			// Joined A before B; directory returns B first.
			"earliest created wins",
			[]*domain.Membership{
				{ID: "m1", UserID: "u1", OrgID: "org-b", CreatedAt: t0.Add(time.Hour)},
				{ID: "m2", UserID: "u1", OrgID: "org-a", CreatedAt: t0},
			},
			"org-a",
		},
		{
			"tie broken by membership id",
			[]*domain.Membership{
				{ID: "m9", UserID: "u1", OrgID: "org-z", CreatedAt: t0},
				{ID: "m3", UserID: "u1", OrgID: "org-y", CreatedAt: t0},
			},
			"org-y",
		},
		{
			"other users ignored",
			[]*domain.Membership{
				{ID: "m1", UserID: "u2", OrgID: "org-old", CreatedAt: t0.Add(-time.Hour)},
				{ID: "m2", UserID: "u1", OrgID: "org-a", CreatedAt: t0},
			},
			"org-a",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(&mockDirectory{memberships: tc.memberships}, time.Second)
			got, err := r.ResolveActiveOrganization(context.Background(), "u1")
			if err != nil {
				t.Fatalf("ResolveActiveOrganization: %v", err)
			}
			if got != tc.want {
				t.Errorf("ResolveActiveOrganization = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveActiveOrganization_DirectoryError(t *testing.T) {
	r := NewResolver(&mockDirectory{err: errors.New("connection refused")}, 0)
	got, err := r.ResolveActiveOrganization(context.Background(), "u1")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
	if got != "" {
		t.Errorf("org = %q, want empty on error", got)
	}
}

func TestResolveActiveOrganization_Timeout(t *testing.T) {
	r := NewResolver(&mockDirectory{block: true}, 10*time.Millisecond)
	_, err := r.ResolveActiveOrganization(context.Background(), "u1")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestResolveActiveOrganization_CancelledContext(t *testing.T) {
	dir := &mockDirectory{}
	r := NewResolver(dir, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ResolveActiveOrganization(ctx, "u1"); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
	if dir.calls != 0 {
		t.Errorf("directory calls = %d, want 0 for cancelled context", dir.calls)
	}
}

func TestEarliest_OrderIndependent(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		memberships := make([]*domain.Membership, n)
		for i := range memberships {
			// Few distinct offsets so ties on CreatedAt are common.
			offset := rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("offset%d", i))
			memberships[i] = &domain.Membership{
				ID:        fmt.Sprintf("m%02d", i),
				UserID:    "u1",
				OrgID:     fmt.Sprintf("org-%02d", i),
				CreatedAt: base.Add(time.Duration(offset) * time.Minute),
			}
		}
		want := Earliest(memberships)

		perm := rapid.Permutation(memberships).Draw(t, "perm")
		got := Earliest(perm)
		if got.ID != want.ID {
			t.Fatalf("Earliest depends on order: got %s, want %s", got.ID, want.ID)
		}
		for _, m := range memberships {
			if m.Earlier(got) {
				t.Fatalf("membership %s sorts before chosen %s", m.ID, got.ID)
			}
		}

		r := NewResolver(&mockDirectory{memberships: perm}, 0)
		for range 2 {
			org, err := r.ResolveActiveOrganization(context.Background(), "u1")
			if err != nil {
				t.Fatalf("ResolveActiveOrganization: %v", err)
			}
			if org != want.OrgID {
				t.Fatalf("ResolveActiveOrganization = %q, want %q", org, want.OrgID)
			}
		}
	})
}

func TestEarliest_Empty(t *testing.T) {
	if got := Earliest(nil); got != nil {
		t.Errorf("Earliest(nil) = %v, want nil", got)
	}
	if got := Earliest([]*domain.Membership{nil}); got != nil {
		t.Errorf("Earliest([nil]) = %v, want nil", got)
	}
}
