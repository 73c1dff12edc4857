package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"org-access-core/backend/internal/db"
	"org-access-core/backend/internal/session/domain"
)

// ErrActiveOrganizationGone is returned by Create when the session's active organization no
// longer has a backing membership.
var ErrActiveOrganizationGone = errors.New("active organization membership no longer exists")

const sessionColumns = `id, token_hash, user_id, active_org_id, ip_address, user_agent, expires_at, revoked_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByTokenHash returns the session for the token hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// ListActiveByUser returns the user's non-revoked, unexpired sessions.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at, id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.TokenHash, s.UserID, db.NullString(s.ActiveOrgID), db.NullString(s.IPAddress),
		db.NullString(s.UserAgent), s.ExpiresAt, db.NullTime(s.RevokedAt), s.CreatedAt, s.UpdatedAt)
	if err != nil && s.ActiveOrgID != "" && db.IsForeignKeyViolation(err) {
		return ErrActiveOrganizationGone
	}
	return err
}

// SetActiveOrganization is a single conditional UPDATE, so concurrent writers resolve last-write-wins
// and readers never observe an active organization without a backing membership.
func (r *PostgresRepository) SetActiveOrganization(ctx context.Context, sessionID, orgID string, at time.Time) (bool, error) {
	return r.execMatched(ctx,
		`UPDATE sessions s SET active_org_id = $2, updated_at = $3
		 WHERE s.id = $1 AND s.revoked_at IS NULL
		   AND EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = s.user_id AND m.org_id = $2)`,
		sessionID, orgID, at)
}

// AssignActiveOrganizationIfUnset is the compare-and-set used after re-resolution.
func (r *PostgresRepository) AssignActiveOrganizationIfUnset(ctx context.Context, sessionID, orgID string, at time.Time) (bool, error) {
	return r.execMatched(ctx,
		`UPDATE sessions s SET active_org_id = $2, updated_at = $3
		 WHERE s.id = $1 AND s.revoked_at IS NULL AND s.active_org_id IS NULL
		   AND EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = s.user_id AND m.org_id = $2)`,
		sessionID, orgID, at)
}

// Revoke marks the session as revoked. Revoking an already revoked session is a no-op.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2, updated_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return err
}

func (r *PostgresRepository) execMatched(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			// Membership deleted between the EXISTS check and the FK check.
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*domain.Session, error) {
	var s domain.Session
	var activeOrg, ip, ua sql.NullString
	var revoked sql.NullTime
	if err := sc.Scan(&s.ID, &s.TokenHash, &s.UserID, &activeOrg, &ip, &ua,
		&s.ExpiresAt, &revoked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ActiveOrgID = activeOrg.String
	s.IPAddress = ip.String
	s.UserAgent = ua.String
	s.RevokedAt = db.TimePtr(revoked)
	return &s, nil
}
