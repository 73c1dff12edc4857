// Package orgcontext decides which organization a user is active in when a session starts.
package orgcontext

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"org-access-core/backend/internal/membership/domain"
)

// ErrDirectoryUnavailable is returned when the membership directory could not be read.
var ErrDirectoryUnavailable = errors.New("membership directory unavailable")

// MembershipLister lists a user's memberships. Implemented by the membership repository.
type MembershipLister interface {
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
}

// Resolver picks the default active organization for a user. It is stateless and has no side effects.
type Resolver struct {
	dir     MembershipLister
	timeout time.Duration
}

// NewResolver returns a Resolver reading from dir. A positive timeout bounds each directory read.
func NewResolver(dir MembershipLister, timeout time.Duration) *Resolver {
	return &Resolver{dir: dir, timeout: timeout}
}

// ResolveActiveOrganization returns the organization of the user's earliest membership
// (ties broken by membership id), or "" when the user has none.
// Directory failures, including timeouts and cancellation, wrap ErrDirectoryUnavailable.
func (r *Resolver) ResolveActiveOrganization(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	memberships, err := r.dir.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: list memberships: %w", ErrDirectoryUnavailable, err)
	}
	if m := Earliest(memberships); m != nil {
		return m.OrgID, nil
	}
	return "", nil
}

// Earliest returns the membership that sorts first by creation time then id, or nil for none.
// The input order is irrelevant and the slice is not modified.
func Earliest(memberships []*domain.Membership) *domain.Membership {
	live := slices.DeleteFunc(slices.Clone(memberships), func(m *domain.Membership) bool { return m == nil })
	if len(live) == 0 {
		return nil
	}
	return slices.MinFunc(live, func(a, b *domain.Membership) int {
		switch {
		case a.Earlier(b):
			return -1
		case b.Earlier(a):
			return 1
		}
		return 0
	})
}
