package organizations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/jackc/pgx/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxSubdomainLength is the longest DNS label.
const MaxSubdomainLength = 63

// MaxNameLength bounds organization and team names, in characters.
const MaxNameLength = 255

var (
	subdomainPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	lowerSubdomain   = cases.Lower(language.Und)
)

// Service implements organization and team business logic.
type Service struct {
	repo  Repository
	users UserProvisioner
}

// NewService creates a new organizations service.
func NewService(repo Repository, users UserProvisioner) *Service {
	return &Service{
		repo:  repo,
		users: users,
	}
}

// CreateOrganizationInput holds data for creating an organization and its
// first administrator.
type CreateOrganizationInput struct {
	Name          string
	Subdomain     string
	Description   *string
	AdminEmail    string
	AdminPassword string
	AdminFullName string
}

// CreateTeamInput holds data for creating a team.
type CreateTeamInput struct {
	Name           string
	Description    *string
	OrganizationID string
}

// OrganizationPatch is a partial update of an organization.
type OrganizationPatch struct {
	name        *string
	subdomain   *string
	description *string
}

// SetName sets a new name.
func (p *OrganizationPatch) SetName(name string) *OrganizationPatch {
	p.name = &name
	return p
}

// SetSubdomain sets a new subdomain.
func (p *OrganizationPatch) SetSubdomain(subdomain string) *OrganizationPatch {
	p.subdomain = &subdomain
	return p
}

// SetDescription sets a new description.
func (p *OrganizationPatch) SetDescription(description string) *OrganizationPatch {
	p.description = &description
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p *OrganizationPatch) IsEmpty() bool {
	return p.name == nil && p.subdomain == nil && p.description == nil
}

// NormalizeSubdomain lowercases a subdomain and checks it is a valid label.
func NormalizeSubdomain(subdomain string) (string, error) {
	subdomain = lowerSubdomain.String(strings.TrimSpace(subdomain))
	if len(subdomain) > MaxSubdomainLength || !subdomainPattern.MatchString(subdomain) {
		return "", ErrInvalidSubdomain
	}
	return subdomain, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// CreateOrganization creates an organization together with its admin user.
// Either both are stored or neither is.
func (s *Service) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*domain.Organization, *domain.User, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, nil, err
	}

	subdomain, err := NormalizeSubdomain(input.Subdomain)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ensureSubdomainAvailable(ctx, subdomain, ""); err != nil {
		return nil, nil, err
	}

	admin, err := s.users.PrepareUser(ctx, identity.CreateUserInput{
		Email:       input.AdminEmail,
		Password:    input.AdminPassword,
		FullName:    input.AdminFullName,
		IsSuperuser: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("prepare admin: %w", err)
	}

	org := &domain.Organization{
		Name:        name,
		Subdomain:   subdomain,
		Description: input.Description,
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateOrganizationTx(ctx, tx, org); err != nil {
		return nil, nil, fmt.Errorf("create organization: %w", err)
	}

	admin.OrganizationID = org.ID
	if err := s.users.CreateUserTx(ctx, tx, admin); err != nil {
		return nil, nil, fmt.Errorf("create admin: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	ctxlog.FromContext(ctx).Info("organization created",
		"organization_id", org.ID,
		"subdomain", org.Subdomain,
		"admin_id", admin.ID,
	)

	return org, admin, nil
}

// GetOrganization retrieves an organization by ID.
func (s *Service) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	org, err := s.repo.GetOrganizationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// GetOrganizationBySubdomain retrieves an organization by subdomain,
// ignoring case.
func (s *Service) GetOrganizationBySubdomain(ctx context.Context, subdomain string) (*domain.Organization, error) {
	normalized, err := NormalizeSubdomain(subdomain)
	if err != nil {
		return nil, ErrOrganizationNotFound
	}

	org, err := s.repo.GetOrganizationBySubdomain(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations lists organizations ordered by name.
func (s *Service) ListOrganizations(ctx context.Context, offset, limit int) ([]domain.Organization, error) {
	orgs, err := s.repo.ListOrganizations(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

// OrganizationExists reports whether an organization exists.
func (s *Service) OrganizationExists(ctx context.Context, id string) (bool, error) {
	return s.repo.OrganizationExists(ctx, id)
}

// UpdateOrganization applies patch to an organization.
func (s *Service) UpdateOrganization(ctx context.Context, id string, patch *OrganizationPatch) (*domain.Organization, error) {
	org, err := s.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return org, nil
	}

	if patch.name != nil {
		name, err := normalizeName(*patch.name)
		if err != nil {
			return nil, err
		}
		org.Name = name
	}
	if patch.subdomain != nil {
		subdomain, err := NormalizeSubdomain(*patch.subdomain)
		if err != nil {
			return nil, err
		}
		if subdomain != org.Subdomain {
			if err := s.ensureSubdomainAvailable(ctx, subdomain, org.ID); err != nil {
				return nil, err
			}
		}
		org.Subdomain = subdomain
	}
	if patch.description != nil {
		org.Description = patch.description
	}

	if err := s.repo.UpdateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	return org, nil
}

// DeleteOrganization deletes an organization and everything it owns.
func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	if err := s.repo.DeleteOrganization(ctx, id); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return nil
}

// CreateTeam creates a team in an existing organization.
func (s *Service) CreateTeam(ctx context.Context, input CreateTeamInput) (*domain.Team, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}

	if err := s.ensureOrganization(ctx, input.OrganizationID); err != nil {
		return nil, err
	}

	team := &domain.Team{
		Name:           name,
		Description:    input.Description,
		OrganizationID: input.OrganizationID,
		Members:        []domain.User{},
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return team, nil
}

// ListTeams lists the teams of an organization with their members.
func (s *Service) ListTeams(ctx context.Context, organizationID string) ([]domain.Team, error) {
	if err := s.ensureOrganization(ctx, organizationID); err != nil {
		return nil, err
	}

	teams, err := s.repo.ListTeams(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// AddTeamMember adds a user of the team's organization to the team.
// Adding an existing member is a no-op.
func (s *Service) AddTeamMember(ctx context.Context, teamID, userID string) error {
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("get team: %w", err)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if user.OrganizationID != team.OrganizationID {
		return ErrUserNotInOrganization
	}

	if err := s.repo.AddTeamMember(ctx, team.ID, user.ID); err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

// RemoveTeamMember removes a user from a team.
func (s *Service) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return fmt.Errorf("get team: %w", err)
	}

	if err := s.repo.RemoveTeamMember(ctx, teamID, userID); err != nil {
		return fmt.Errorf("remove team member: %w", err)
	}
	return nil
}

func (s *Service) ensureOrganization(ctx context.Context, id string) error {
	exists, err := s.repo.OrganizationExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return ErrOrganizationNotFound
	}
	return nil
}

func (s *Service) ensureSubdomainAvailable(ctx context.Context, subdomain, selfID string) error {
	existing, err := s.repo.GetOrganizationBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return nil
		}
		return fmt.Errorf("check subdomain: %w", err)
	}
	if existing.ID != selfID {
		return ErrSubdomainExists
	}
	return nil
}
