// Package postgres provides PostgreSQL implementation of the identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	userEmailConstraint = "users_email_key"
	userOrgConstraint   = "users_organization_id_fkey"
)

const userColumns = `id, email, full_name, hashed_password, is_active, is_superuser, organization_id, created_at, updated_at`

// Repository implements identity.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsSuperuser,
		&u.OrganizationID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err, userEmailConstraint):
		return identity.ErrEmailExists
	case postgres.IsForeignKeyViolation(err, userOrgConstraint):
		return identity.ErrOrganizationNotFound
	}
	return err
}

const insertUserQuery = `
	INSERT INTO users (email, full_name, hashed_password, is_active, is_superuser, organization_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at, updated_at
`

func insertUser(ctx context.Context, row func(ctx context.Context, sql string, args ...any) pgx.Row, user *domain.User) error {
	err := row(ctx, insertUserQuery,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperuser,
		user.OrganizationID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapWriteError(err))
	}
	return nil
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, r.db.QueryRow, user)
}

// CreateUserTx inserts a new user within a transaction.
func (r *Repository) CreateUserTx(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	return insertUser(ctx, tx.QueryRow, user)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// ListUsers retrieves users matching filter ordered by email.
func (r *Repository) ListUsers(ctx context.Context, filter identity.UserFilter) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND organization_id = $%d", argNum)
		args = append(args, *filter.OrganizationID)
		argNum++
	}

	query += " ORDER BY email"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// UpdateUser updates every editable field of a user.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, full_name = $3, hashed_password = $4, is_active = $5, is_superuser = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperuser,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", mapWriteError(err))
	}
	return nil
}

// DeleteUser deletes a user. Team memberships cascade; authored incidents
// block the delete.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "") {
			return identity.ErrUserInUse
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
