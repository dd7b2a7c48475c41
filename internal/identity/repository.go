package identity

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for user storage.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	CreateUserTx(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error
}

// UserFilter represents filter criteria for listing users.
type UserFilter struct {
	OrganizationID *string
	Offset         int
	Limit          int
}

// Authenticator issues and validates access tokens.
type Authenticator interface {
	GenerateToken(ctx context.Context, user *domain.User) (string, error)
	ValidateToken(ctx context.Context, token string) (userID string, err error)
	Type() string
}

// OrganizationChecker reports whether an organization exists.
type OrganizationChecker interface {
	OrganizationExists(ctx context.Context, id string) (bool, error)
}
