package cache

// Audience restricts which subscribers receive an invalidation. The zero value is everyone.
// OrgID keeps client delivery inside one organization: only its current members and users who
// pass the admin override hear about it, plus Subject, the user the change is about.
type Audience struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

// Everyone is the audience of mutations whose targets name no organization.
var Everyone = Audience{}

// SessionAudience addresses a single session.
func SessionAudience(sessionID string) Audience {
	return Audience{SessionID: sessionID}
}

// OrgAudience addresses the members of orgID and subject.
func OrgAudience(orgID, subject string) Audience {
	return Audience{OrgID: orgID, Subject: subject}
}

// OrgScoped reports whether delivery to clients depends on organization visibility.
func (a Audience) OrgScoped() bool {
	return a.OrgID != ""
}

// Includes reports whether a subscriber for (sessionID, userID) is addressed.
func (a Audience) Includes(sessionID, userID string) bool {
	if a.SessionID != "" && a.SessionID != sessionID {
		return false
	}
	return a.UserID == "" || a.UserID == userID
}

// Mutation is a server-side state change that affects cached views. Every mutation declares
// the targets it invalidates and who should hear about it.
type Mutation interface {
	Name() string
	Invalidates() []Target
	Audience() Audience
}

// UserRoleChanged is an admin changing a user's global role.
type UserRoleChanged struct {
	UserID string
	Role   string
}

func (UserRoleChanged) Name() string { return "user_role_changed" }

func (UserRoleChanged) Invalidates() []Target {
	return []Target{All(FamilyUsers), All(FamilyAdmin)}
}

func (UserRoleChanged) Audience() Audience { return Everyone }

// MembershipRemoved is a member leaving or being removed from an organization. Only that
// organization's member list is affected; other organizations' views stay cached.
type MembershipRemoved struct {
	OrgID  string
	UserID string
}

func (MembershipRemoved) Name() string { return "membership_removed" }

func (m MembershipRemoved) Invalidates() []Target {
	return []Target{Exact(FamilyTeam, m.OrgID, SubMembers)}
}

func (m MembershipRemoved) Audience() Audience { return OrgAudience(m.OrgID, m.UserID) }

// OrganizationSwitched is a session changing its active organization.
type OrganizationSwitched struct {
	SessionID     string
	UserID        string
	PreviousOrgID string
	OrgID         string
}

func (OrganizationSwitched) Name() string { return "organization_switched" }

func (m OrganizationSwitched) Invalidates() []Target {
	return activeContextTargets(m.PreviousOrgID)
}

func (m OrganizationSwitched) Audience() Audience { return SessionAudience(m.SessionID) }

// ActiveOrganizationReassigned is a session whose active organization was cleared by a
// membership removal and then re-resolved. OrgID is empty when nothing was left to resolve.
type ActiveOrganizationReassigned struct {
	SessionID     string
	UserID        string
	PreviousOrgID string
	OrgID         string
}

func (ActiveOrganizationReassigned) Name() string { return "active_organization_reassigned" }

func (m ActiveOrganizationReassigned) Invalidates() []Target {
	return activeContextTargets(m.PreviousOrgID)
}

func (m ActiveOrganizationReassigned) Audience() Audience { return SessionAudience(m.SessionID) }

// activeContextTargets covers every view that depends on which organization a session is in.
func activeContextTargets(previousOrgID string) []Target {
	targets := []Target{
		Scoped(FamilySessions, ScopeCurrent),
		AnyScope(FamilyOrganizations, SubActive),
	}
	if previousOrgID != "" {
		targets = append(targets, Scoped(FamilyTeam, previousOrgID), Scoped(FamilyOrganizations, previousOrgID))
	}
	return append(targets, Scoped(FamilyTeam, ScopeCurrent), Scoped(FamilyOrganizations, ScopeCurrent))
}

// MembershipAdded is a user joining an organization.
type MembershipAdded struct {
	OrgID  string
	UserID string
}

func (MembershipAdded) Name() string { return "membership_added" }

func (m MembershipAdded) Invalidates() []Target {
	return []Target{Exact(FamilyTeam, m.OrgID, SubMembers), AnyScope(FamilyOrganizations, SubList)}
}

func (m MembershipAdded) Audience() Audience { return OrgAudience(m.OrgID, m.UserID) }

// MembershipRoleChanged is an organization owner changing a member's organization role.
type MembershipRoleChanged struct {
	OrgID  string
	UserID string
	Role   string
}

func (MembershipRoleChanged) Name() string { return "membership_role_changed" }

func (m MembershipRoleChanged) Invalidates() []Target {
	return []Target{
		Exact(FamilyTeam, m.OrgID, SubMembers),
		Exact(FamilyOrganizations, m.OrgID, SubPermissions),
		Exact(FamilyOrganizations, ScopeCurrent, SubPermissions),
	}
}

func (m MembershipRoleChanged) Audience() Audience { return OrgAudience(m.OrgID, m.UserID) }

// OrganizationCreated is a new organization with its creator as owner.
type OrganizationCreated struct {
	OrgID   string
	OwnerID string
}

func (OrganizationCreated) Name() string { return "organization_created" }

func (OrganizationCreated) Invalidates() []Target {
	return []Target{AnyScope(FamilyOrganizations, SubList), Exact(FamilyAdmin, ScopeCurrent, SubStats)}
}

func (m OrganizationCreated) Audience() Audience { return OrgAudience(m.OrgID, m.OwnerID) }

// OrganizationDeleted removes an organization and, through the schema, all of its memberships.
type OrganizationDeleted struct {
	OrgID string
}

func (OrganizationDeleted) Name() string { return "organization_deleted" }

func (m OrganizationDeleted) Invalidates() []Target {
	return []Target{
		Scoped(FamilyOrganizations, m.OrgID),
		Scoped(FamilyTeam, m.OrgID),
		AnyScope(FamilyOrganizations, SubList),
		Exact(FamilyAdmin, ScopeCurrent, SubStats),
	}
}

// Audience is the organization itself. Once deleted it has no members, so former members are told
// through OrganizationAccessRevoked.
func (m OrganizationDeleted) Audience() Audience { return OrgAudience(m.OrgID, "") }

// OrganizationAccessRevoked tells one former member that an organization is gone.
type OrganizationAccessRevoked struct {
	OrgID  string
	UserID string
}

func (OrganizationAccessRevoked) Name() string { return "organization_access_revoked" }

func (m OrganizationAccessRevoked) Invalidates() []Target {
	return []Target{
		Scoped(FamilyOrganizations, m.OrgID),
		Scoped(FamilyTeam, m.OrgID),
		AnyScope(FamilyOrganizations, SubList),
	}
}

func (m OrganizationAccessRevoked) Audience() Audience { return Audience{UserID: m.UserID} }
