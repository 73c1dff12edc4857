// Package cache keeps client-visible views consistent with server-side mutations. Mutations
// declare the view keys they invalidate; the Hub delivers those invalidations to per-session
// Clients.
package cache

import "strings"

// Family is a closed set of view families.
type Family string

const (
	FamilyOrganizations Family = "organizations"
	FamilyUsers         Family = "users"
	FamilyTeam          Family = "team"
	FamilySessions      Family = "sessions"
	FamilyAdmin         Family = "admin"
)

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	switch f {
	case FamilyOrganizations, FamilyUsers, FamilyTeam, FamilySessions, FamilyAdmin:
		return true
	}
	return false
}

// ScopeCurrent addresses views of whatever organization (or session) the viewer is currently in.
const ScopeCurrent = "current"

// Sub names the view within a family and scope.
type Sub string

const (
	SubList        Sub = "list"
	SubMembers     Sub = "members"
	SubStats       Sub = "stats"
	SubActive      Sub = "active"
	SubPermissions Sub = "permissions"
)

// Valid reports whether s is a known sub-view.
func (s Sub) Valid() bool {
	switch s {
	case SubList, SubMembers, SubStats, SubActive, SubPermissions:
		return true
	}
	return false
}

// Key identifies one cached view. Scope is an organization id or ScopeCurrent.
type Key struct {
	Family Family `json:"family"`
	Scope  string `json:"scope"`
	Sub    Sub    `json:"sub"`
}

// NewKey is shorthand for Key{family, scope, sub}.
func NewKey(family Family, scope string, sub Sub) Key {
	return Key{Family: family, Scope: scope, Sub: sub}
}

// Valid reports whether the key has a known family and sub and a non-empty scope.
func (k Key) Valid() bool {
	return k.Family.Valid() && k.Scope != "" && k.Sub.Valid()
}

func (k Key) String() string {
	return join(string(k.Family), k.Scope, string(k.Sub))
}

// Target selects keys for invalidation. Family is required; an empty Scope or Sub matches any.
type Target struct {
	Family Family `json:"family"`
	Scope  string `json:"scope,omitempty"`
	Sub    Sub    `json:"sub,omitempty"`
}

// All targets every key in family.
func All(family Family) Target {
	return Target{Family: family}
}

// Scoped targets every key in family under scope.
func Scoped(family Family, scope string) Target {
	return Target{Family: family, Scope: scope}
}

// Exact targets a single key.
func Exact(family Family, scope string, sub Sub) Target {
	return Target{Family: family, Scope: scope, Sub: sub}
}

// AnyScope targets sub in family under every scope.
func AnyScope(family Family, sub Sub) Target {
	return Target{Family: family, Sub: sub}
}

// Matches reports whether k is selected by t.
func (t Target) Matches(k Key) bool {
	if t.Family != k.Family {
		return false
	}
	if t.Scope != "" && t.Scope != k.Scope {
		return false
	}
	return t.Sub == "" || t.Sub == k.Sub
}

func (t Target) String() string {
	scope := t.Scope
	if scope == "" && t.Sub != "" {
		scope = "*"
	}
	return join(string(t.Family), scope, string(t.Sub))
}

func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
