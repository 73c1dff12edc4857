package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"org-access-core/backend/internal/db"
	"org-access-core/backend/internal/user/domain"
)

var (
	// ErrNotFound is returned by mutations that matched no user.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when creating a user whose email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

const userColumns = `id, email, name, password_hash, role, status, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user for the (lowercased) email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), string(u.Status), u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// UpdateRole sets the user's global role and returns the updated user.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
		id, string(role), time.Now().UTC())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// CountByRole returns the number of active users per global role.
func (r *PostgresRepository) CountByRole(ctx context.Context) (map[domain.Role]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, COUNT(*) FROM users WHERE status = 'active' GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.Role]int64)
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[domain.Role(role)] = n
	}
	return out, rows.Err()
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var role, status string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}
