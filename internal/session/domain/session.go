package domain

import "time"

// Session is a signed-in user's session, addressed by the SHA-256 hash of its bearer token.
// ActiveOrgID is empty when the user has no active organization.
type Session struct {
	ID          string
	TokenHash   string
	UserID      string
	ActiveOrgID string
	IPAddress   string
	UserAgent   string
	ExpiresAt   time.Time
	RevokedAt   *time.Time // nil when not revoked
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Live reports whether the session is neither revoked nor expired at now.
func (s *Session) Live(now time.Time) bool {
	if s == nil || s.RevokedAt != nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// HasActiveOrganization reports whether an active organization is set.
func (s *Session) HasActiveOrganization() bool {
	return s != nil && s.ActiveOrgID != ""
}
