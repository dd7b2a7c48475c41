package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Service implements identity business logic.
type Service struct {
	repo Repository
	auth Authenticator
	orgs OrganizationChecker
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator, orgs OrganizationChecker) *Service {
	return &Service{
		repo: repo,
		auth: auth,
		orgs: orgs,
	}
}

// CreateUserInput holds data for creating a user. A nil IsActive means active.
type CreateUserInput struct {
	Email          string
	Password       string
	FullName       string
	OrganizationID string
	IsActive       *bool
	IsSuperuser    bool
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// UserPatch is a partial update of a user. Setting a password rehashes it.
type UserPatch struct {
	email       *string
	password    *string
	fullName    *string
	isActive    *bool
	isSuperuser *bool
}

// SetEmail sets a new email.
func (p *UserPatch) SetEmail(email string) *UserPatch {
	p.email = &email
	return p
}

// SetPassword sets a new password.
func (p *UserPatch) SetPassword(password string) *UserPatch {
	p.password = &password
	return p
}

// SetFullName sets a new full name.
func (p *UserPatch) SetFullName(name string) *UserPatch {
	p.fullName = &name
	return p
}

// SetActive activates or deactivates the user.
func (p *UserPatch) SetActive(active bool) *UserPatch {
	p.isActive = &active
	return p
}

// SetSuperuser grants or revokes superuser rights.
func (p *UserPatch) SetSuperuser(superuser bool) *UserPatch {
	p.isSuperuser = &superuser
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p *UserPatch) IsEmpty() bool {
	return p.email == nil && p.password == nil && p.fullName == nil &&
		p.isActive == nil && p.isSuperuser == nil
}

var (
	lowerEmail    = cases.Lower(language.Und)
	emailValidate = validator.New()
)

// NormalizeEmail trims and lowercases an email address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = lowerEmail.String(strings.TrimSpace(email))
	if err := emailValidate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// PrepareUser validates input and builds a user with a hashed password
// without storing it. The email must not be taken.
func (s *Service) PrepareUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	return &domain.User{
		Email:          email,
		FullName:       strings.TrimSpace(input.FullName),
		PasswordHash:   hash,
		IsActive:       active,
		IsSuperuser:    input.IsSuperuser,
		OrganizationID: input.OrganizationID,
	}, nil
}

// CreateUser creates a user in an existing organization.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	exists, err := s.orgs.OrganizationExists(ctx, input.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return nil, ErrOrganizationNotFound
	}

	user, err := s.PrepareUser(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user created", "user_id", user.ID, "organization_id", user.OrganizationID)

	return user, nil
}

// CreateUserTx stores a user prepared by PrepareUser within tx.
func (s *Service) CreateUserTx(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	if err := s.repo.CreateUserTx(ctx, tx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, string, error) {
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, input.Password) {
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, "", ErrUserInactive
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// ValidateToken validates an access token and returns the user ID it was
// issued to.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	return s.auth.ValidateToken(ctx, token)
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers lists users matching filter.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUser applies patch to a user.
func (s *Service) UpdateUser(ctx context.Context, id string, patch *UserPatch) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return user, nil
	}

	if patch.email != nil {
		email, err := NormalizeEmail(*patch.email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			if err := s.ensureEmailAvailable(ctx, email, user.ID); err != nil {
				return nil, err
			}
		}
		user.Email = email
	}
	if patch.password != nil {
		hash, err := HashPassword(*patch.password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if patch.fullName != nil {
		user.FullName = strings.TrimSpace(*patch.fullName)
	}
	if patch.isActive != nil {
		user.IsActive = *patch.isActive
	}
	if patch.isSuperuser != nil {
		user.IsSuperuser = *patch.isSuperuser
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeleteUser deletes a user. Users who authored incidents cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *Service) ensureEmailAvailable(ctx context.Context, email, selfID string) error {
	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("check email: %w", err)
	}
	if existing.ID != selfID {
		return ErrEmailExists
	}
	return nil
}
