package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/platform/rbac"
	userdomain "org-access-core/backend/internal/user/domain"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e, err := NewOPAEvaluator(context.Background(), Options{})
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	testCases := []struct {
		name          string
		overrideOwner bool
		role          userdomain.Role
		minRole       membershipdomain.Role
		want          bool
	}{
		{"user", true, userdomain.RoleUser, membershipdomain.RoleMember, false},
		{"moderator", true, userdomain.RoleModerator, membershipdomain.RoleAdmin, false},
		{"admin member check", false, userdomain.RoleAdmin, membershipdomain.RoleMember, true},
		{"admin empty min role", false, userdomain.RoleAdmin, "", true},
		{"admin owner check allowed", true, userdomain.RoleAdmin, membershipdomain.RoleOwner, true},
		{"admin owner check disallowed", false, userdomain.RoleAdmin, membershipdomain.RoleOwner, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewOPAEvaluator(context.Background(), Options{AdminOverridesOwner: tc.overrideOwner})
			if err != nil {
				t.Fatalf("NewOPAEvaluator: %v", err)
			}
			got, err := e.AdminOverride(context.Background(), rbac.AccessRequest{
				UserID: "u1", GlobalRole: tc.role, OrgID: "org-1", MinRole: tc.minRole,
			})
			if err != nil {
				t.Fatalf("AdminOverride: %v", err)
			}
			if got != tc.want {
				t.Errorf("AdminOverride = %v, want %v", got, tc.want)
			}
		})
	}
}

// The Rego default policy and the builtin decider must agree.
func TestOPAEvaluator_MatchesBuiltinDecider(t *testing.T) {
	roles := []userdomain.Role{userdomain.RoleAdmin, userdomain.RoleUser, userdomain.RoleModerator}
	minRoles := []membershipdomain.Role{"", membershipdomain.RoleMember, membershipdomain.RoleAdmin, membershipdomain.RoleOwner}
	for _, overrideOwner := range []bool{true, false} {
		e, err := NewOPAEvaluator(context.Background(), Options{AdminOverridesOwner: overrideOwner})
		if err != nil {
			t.Fatalf("NewOPAEvaluator: %v", err)
		}
		builtin := rbac.BuiltinDecider{AdminOverridesOwner: overrideOwner}
		for _, role := range roles {
			for _, minRole := range minRoles {
				req := rbac.AccessRequest{UserID: "u", GlobalRole: role, OrgID: "o", MinRole: minRole}
				want, _ := builtin.AdminOverride(context.Background(), req)
				got, err := e.AdminOverride(context.Background(), req)
				if err != nil {
					t.Fatalf("AdminOverride(%+v): %v", req, err)
				}
				if got != want {
					t.Errorf("overrideOwner=%v role=%s min=%q: opa=%v builtin=%v", overrideOwner, role, minRole, got, want)
				}
			}
		}
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	// Moderators may read any organization but not administer it.
	policy := `package orgaccess.authz

default admin_override := false

admin_override if {
	input.user.global_role == "moderator"
	input.request.min_role == "member"
}
`
	e, err := NewOPAEvaluator(context.Background(), Options{Policy: policy})
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	ctx := context.Background()
	got, err := e.AdminOverride(ctx, rbac.AccessRequest{GlobalRole: userdomain.RoleModerator})
	if err != nil || !got {
		t.Errorf("moderator read = %v, %v; want true, nil", got, err)
	}
	got, err = e.AdminOverride(ctx, rbac.AccessRequest{GlobalRole: userdomain.RoleAdmin, MinRole: membershipdomain.RoleAdmin})
	if err != nil || got {
		t.Errorf("admin under custom policy = %v, %v; want false, nil", got, err)
	}
}

func TestOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), Options{Policy: "package broken\n\nallow if {"}); err == nil {
		t.Fatal("NewOPAEvaluator should fail to compile invalid Rego")
	}
}

func TestOPAEvaluator_UndefinedDecision(t *testing.T) {
	policy := `package orgaccess.authz

admin_override := "yes"
`
	e, err := NewOPAEvaluator(context.Background(), Options{Policy: policy})
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if _, err := e.AdminOverride(context.Background(), rbac.AccessRequest{}); !errors.Is(err, ErrUndefinedDecision) {
		t.Errorf("err = %v, want ErrUndefinedDecision", err)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	if src, err := LoadPolicyFile(""); err != nil || src != "" {
		t.Errorf("LoadPolicyFile(\"\") = %q, %v; want empty, nil", src, err)
	}
	path := filepath.Join(t.TempDir(), "access.rego")
	if err := os.WriteFile(path, []byte(DefaultPolicy), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	if src != DefaultPolicy {
		t.Error("LoadPolicyFile returned different content")
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("LoadPolicyFile on missing file should fail")
	}
}
