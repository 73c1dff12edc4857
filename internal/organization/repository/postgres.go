package repository

import (
	"context"
	"database/sql"
	"errors"

	"org-access-core/backend/internal/db"
	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/organization/domain"
)

// ErrNotFound is returned by mutations that matched no organization.
var ErrNotFound = errors.New("organization not found")

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	var o domain.Org
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrgStatus(status)
	return &o, nil
}

// ListOrganizationsByUser returns the organizations the user belongs to, in membership order.
func (r *PostgresRepository) ListOrganizationsByUser(ctx context.Context, userID string) ([]*domain.Org, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.status, o.created_at
		 FROM organizations o JOIN memberships m ON m.org_id = o.id
		 WHERE m.user_id = $1 ORDER BY m.created_at, m.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Org
	for rows.Next() {
		var o domain.Org
		var status string
		if err := rows.Scan(&o.ID, &o.Name, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OrgStatus(status)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// CreateOrganizationWithOwner persists the organization and its first owner atomically.
func (r *PostgresRepository) CreateOrganizationWithOwner(ctx context.Context, o *domain.Org, owner *membershipdomain.Membership) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO organizations (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
			o.ID, o.Name, string(o.Status), o.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (id, user_id, org_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
			owner.ID, owner.UserID, o.ID, string(owner.Role), owner.CreatedAt)
		return err
	})
}

// DeleteOrganization deletes the organization; memberships cascade and sessions active in it are cleared.
func (r *PostgresRepository) DeleteOrganization(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOrganizations returns the total number of organizations.
func (r *PostgresRepository) CountOrganizations(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n)
	return n, err
}
