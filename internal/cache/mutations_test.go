package cache

import (
	"slices"
	"testing"
)

func targetStrings(ts []Target) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func TestMutations_DeclaredTargets(t *testing.T) {
	testCases := []struct {
		name     string
		mutation Mutation
		want     []string
		audience Audience
	}{
		{
			"user role changed",
			UserRoleChanged{UserID: "u1", Role: "admin"},
			[]string{"users", "admin"},
			Everyone,
		},
		{
			"membership removed",
			MembershipRemoved{OrgID: "org-1", UserID: "u1"},
			[]string{"team.org-1.members"},
			OrgAudience("org-1", "u1"),
		},
		{
			"organization switched",
			OrganizationSwitched{SessionID: "s1", UserID: "u1", PreviousOrgID: "org-a", OrgID: "org-b"},
			[]string{"sessions.current", "organizations.*.active", "team.org-a", "organizations.org-a", "team.current", "organizations.current"},
			SessionAudience("s1"),
		},
		{
			"switched from nothing",
			OrganizationSwitched{SessionID: "s1", OrgID: "org-b"},
			[]string{"sessions.current", "organizations.*.active", "team.current", "organizations.current"},
			SessionAudience("s1"),
		},
		{
			"reassigned",
			ActiveOrganizationReassigned{SessionID: "s2", PreviousOrgID: "org-a", OrgID: "org-c"},
			[]string{"sessions.current", "organizations.*.active", "team.org-a", "organizations.org-a", "team.current", "organizations.current"},
			SessionAudience("s2"),
		},
		{
			"membership added",
			MembershipAdded{OrgID: "org-1", UserID: "u2"},
			[]string{"team.org-1.members", "organizations.*.list"},
			OrgAudience("org-1", "u2"),
		},
		{
			"membership role changed",
			MembershipRoleChanged{OrgID: "org-1", UserID: "u2", Role: "admin"},
			[]string{"team.org-1.members", "organizations.org-1.permissions", "organizations.current.permissions"},
			OrgAudience("org-1", "u2"),
		},
		{
			"organization created",
			OrganizationCreated{OrgID: "org-9", OwnerID: "u1"},
			[]string{"organizations.*.list", "admin.current.stats"},
			OrgAudience("org-9", "u1"),
		},
		{
			"organization deleted",
			OrganizationDeleted{OrgID: "org-9"},
			[]string{"organizations.org-9", "team.org-9", "organizations.*.list", "admin.current.stats"},
			OrgAudience("org-9", ""),
		},
		{
			"organization access revoked",
			OrganizationAccessRevoked{OrgID: "org-9", UserID: "u3"},
			[]string{"organizations.org-9", "team.org-9", "organizations.*.list"},
			Audience{UserID: "u3"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := targetStrings(tc.mutation.Invalidates())
			if !slices.Equal(got, tc.want) {
				t.Errorf("Invalidates() = %v, want %v", got, tc.want)
			}
			if a := tc.mutation.Audience(); a != tc.audience {
				t.Errorf("Audience() = %+v, want %+v", a, tc.audience)
			}
			if tc.mutation.Name() == "" {
				t.Error("Name() is empty")
			}
		})
	}
}

func TestMembershipRemoved_LeavesOtherOrganizationsCached(t *testing.T) {
	client, err := NewClient(16)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	keys := []Key{
		NewKey(FamilyTeam, "org-1", SubMembers),
		NewKey(FamilyTeam, "org-2", SubMembers),
		NewKey(FamilyTeam, "org-1", SubStats),
		NewKey(FamilyOrganizations, "org-1", SubStats),
		NewKey(FamilyUsers, ScopeCurrent, SubList),
	}
	for _, k := range keys {
		client.views.Add(k, k.String())
	}

	client.Apply(NewEvent(MembershipRemoved{OrgID: "org-1", UserID: "u1"}))

	if _, ok := client.Peek(keys[0]); ok {
		t.Errorf("%s still cached after removal", keys[0])
	}
	for _, k := range keys[1:] {
		if _, ok := client.Peek(k); !ok {
			t.Errorf("%s evicted, want kept", k)
		}
	}
}

func TestAudience_Includes(t *testing.T) {
	testCases := []struct {
		name     string
		audience Audience
		session  string
		user     string
		want     bool
	}{
		{"everyone", Everyone, "s1", "u1", true},
		{"same session", SessionAudience("s1"), "s1", "u1", true},
		{"other session", SessionAudience("s1"), "s2", "u1", false},
		{"same user", Audience{UserID: "u1"}, "s9", "u1", true},
		{"other user", Audience{UserID: "u1"}, "s9", "u2", false},
		{"organization scope is left to the hub", OrgAudience("org-1", "u1"), "s9", "u2", true},
	}
	for _, tc := range testCases {
		if got := tc.audience.Includes(tc.session, tc.user); got != tc.want {
			t.Errorf("%s: Includes = %v, want %v", tc.name, got, tc.want)
		}
	}
}
