package middleware

import (
	"net/http"
	"strings"

	"org-access-core/backend/internal/platform/rbac"
)

const bearerPrefix = "bearer "

// SessionCookie carries the session token for browser clients that cannot set headers (EventSource).
const SessionCookie = "session_token"

// CredentialsFromRequest returns the credentials the caller presented: the Bearer token from the
// Authorization header, else the session cookie. Missing credentials yield an empty token, which
// the guard rejects.
func CredentialsFromRequest(r *http.Request) rbac.Credentials {
	if token := bearer(r.Header.Get("Authorization")); token != "" {
		return rbac.Credentials{SessionToken: token}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return rbac.Credentials{SessionToken: strings.TrimSpace(c.Value)}
	}
	return rbac.Credentials{}
}

// bearer returns the token from an Authorization header value, or "" if missing or malformed.
func bearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
