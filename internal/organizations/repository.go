package organizations

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for organization and team storage.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error)
	GetOrganizationBySubdomain(ctx context.Context, subdomain string) (*domain.Organization, error)
	ListOrganizations(ctx context.Context, offset, limit int) ([]domain.Organization, error)
	UpdateOrganization(ctx context.Context, org *domain.Organization) error
	DeleteOrganization(ctx context.Context, id string) error
	OrganizationExists(ctx context.Context, id string) (bool, error)

	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
	// ListTeams returns the teams of an organization with their members.
	ListTeams(ctx context.Context, organizationID string) ([]domain.Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string) error
	RemoveTeamMember(ctx context.Context, teamID, userID string) error

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateOrganizationTx(ctx context.Context, tx pgx.Tx, org *domain.Organization) error
}

// UserProvisioner creates and looks up users on behalf of organizations.
type UserProvisioner interface {
	PrepareUser(ctx context.Context, input identity.CreateUserInput) (*domain.User, error)
	CreateUserTx(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
}
