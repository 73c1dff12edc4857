package rbac

import (
	"errors"
	"strings"
)

// Error kinds. Match with errors.Is against any error returned by Guard.Authorize.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Reasons carried by Error.Reason.
const (
	ReasonMissingCredentials   = "missing_credentials"
	ReasonUnknownSession       = "unknown_session"
	ReasonSessionRevoked       = "session_revoked"
	ReasonSessionExpired       = "session_expired"
	ReasonSessionUnavailable   = "session_unavailable"
	ReasonUnknownUser          = "unknown_user"
	ReasonUserDisabled         = "user_disabled"
	ReasonNotAdmin             = "not_admin"
	ReasonMissingRole          = "missing_role"
	ReasonNotMember            = "not_member"
	ReasonInsufficientRole     = "insufficient_role"
	ReasonNoActiveOrganization = "no_active_organization"
	ReasonDirectoryUnavailable = "directory_unavailable"
	ReasonPolicyUnavailable    = "policy_unavailable"
	ReasonUnknownRequirement   = "unknown_requirement"
)

// Error is a failed authorization. Kind is ErrUnauthenticated or ErrForbidden; Err is the
// underlying store or context error, if any.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reason returns the Reason of the first *Error in err's chain, or "".
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func unauthenticated(reason string, cause error) *Error {
	return &Error{Kind: ErrUnauthenticated, Reason: reason, Err: cause}
}

func forbidden(reason string, cause error) *Error {
	return &Error{Kind: ErrForbidden, Reason: reason, Err: cause}
}
