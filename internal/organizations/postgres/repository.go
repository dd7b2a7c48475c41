// Package postgres provides PostgreSQL implementation of the organizations repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/organizations"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	subdomainConstraint  = "organizations_subdomain_key"
	teamOrgConstraint    = "teams_organization_id_fkey"
	memberTeamConstraint = "team_members_team_id_fkey"
	memberUserConstraint = "team_members_user_id_fkey"
)

const organizationColumns = `id, name, subdomain, description, created_at, updated_at`

// Repository implements organizations.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Subdomain, &o.Description, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &o, nil
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err, subdomainConstraint):
		return organizations.ErrSubdomainExists
	case postgres.IsCheckViolation(err):
		return organizations.ErrInvalidSubdomain
	case postgres.IsForeignKeyViolation(err, teamOrgConstraint):
		return organizations.ErrOrganizationNotFound
	case postgres.IsForeignKeyViolation(err, memberTeamConstraint):
		return organizations.ErrTeamNotFound
	case postgres.IsForeignKeyViolation(err, memberUserConstraint):
		return organizations.ErrUserNotFound
	}
	return err
}

// CreateOrganizationTx inserts an organization within a transaction.
func (r *Repository) CreateOrganizationTx(ctx context.Context, tx pgx.Tx, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (name, subdomain, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query, org.Name, org.Subdomain, org.Description).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert organization: %w", mapWriteError(err))
	}
	return nil
}

// GetOrganizationByID retrieves an organization by ID.
func (r *Repository) GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, organizations.ErrOrganizationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get organization by id: %w", err)
	}
	return org, nil
}

// GetOrganizationBySubdomain retrieves an organization by subdomain.
func (r *Repository) GetOrganizationBySubdomain(ctx context.Context, subdomain string) (*domain.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE subdomain = $1`, subdomain))
	if err != nil {
		if errors.Is(err, organizations.ErrOrganizationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get organization by subdomain: %w", err)
	}
	return org, nil
}

// OrganizationExists reports whether an organization with id exists.
func (r *Repository) OrganizationExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check organization: %w", err)
	}
	return exists, nil
}

// ListOrganizations retrieves organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context, offset, limit int) ([]domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY name, id OFFSET $1`
	args := []interface{}{offset}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]domain.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, *org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}

	return orgs, nil
}

// UpdateOrganization updates the editable fields of an organization.
func (r *Repository) UpdateOrganization(ctx context.Context, org *domain.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, subdomain = $3, description = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, org.ID, org.Name, org.Subdomain, org.Description).Scan(&org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return organizations.ErrOrganizationNotFound
		}
		return fmt.Errorf("update organization: %w", mapWriteError(err))
	}
	return nil
}

// DeleteOrganization deletes an organization. Users, teams, services and
// incidents cascade.
func (r *Repository) DeleteOrganization(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if result.RowsAffected() == 0 {
		return organizations.ErrOrganizationNotFound
	}
	return nil
}

// CreateTeam inserts a new team.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	query := `
		INSERT INTO teams (name, description, organization_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, team.Name, team.Description, team.OrganizationID).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert team: %w", mapWriteError(err))
	}
	return nil
}

// GetTeam retrieves a team by ID without its members.
func (r *Repository) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	query := `SELECT id, name, description, organization_id, created_at, updated_at FROM teams WHERE id = $1`
	var t domain.Team
	err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Description, &t.OrganizationID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &t, nil
}

// ListTeams retrieves the teams of an organization ordered by name, each
// with its members ordered by email.
func (r *Repository) ListTeams(ctx context.Context, organizationID string) ([]domain.Team, error) {
	query := `
		SELECT id, name, description, organization_id, created_at, updated_at
		FROM teams
		WHERE organization_id = $1
		ORDER BY name, id
	`
	rows, err := r.db.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	index := make(map[string]int)
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.OrganizationID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.Members = []domain.User{}
		index[t.ID] = len(teams)
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}

	if len(teams) == 0 {
		return teams, nil
	}

	membersQuery := `
		SELECT tm.team_id, u.id, u.email, u.full_name, u.is_active, u.is_superuser, u.organization_id, u.created_at, u.updated_at
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		JOIN teams t ON t.id = tm.team_id
		WHERE t.organization_id = $1
		ORDER BY u.email
	`
	memberRows, err := r.db.Query(ctx, membersQuery, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var teamID string
		var u domain.User
		err := memberRows.Scan(&teamID, &u.ID, &u.Email, &u.FullName, &u.IsActive, &u.IsSuperuser,
			&u.OrganizationID, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		if i, ok := index[teamID]; ok {
			teams[i].Members = append(teams[i].Members, u)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}

	return teams, nil
}

// AddTeamMember adds a user to a team. Existing memberships are kept as is.
func (r *Repository) AddTeamMember(ctx context.Context, teamID, userID string) error {
	query := `
		INSERT INTO team_members (team_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, teamID, userID); err != nil {
		return fmt.Errorf("add team member: %w", mapWriteError(err))
	}
	return nil
}

// RemoveTeamMember removes a user from a team.
func (r *Repository) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("remove team member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return organizations.ErrNotTeamMember
	}
	return nil
}
