package identity

import "errors"

// Domain errors for identity module.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailExists          = errors.New("email already exists")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidCredentials   = errors.New("incorrect email or password")
	ErrInvalidToken         = errors.New("invalid token")
	ErrUserInactive         = errors.New("inactive user")
	ErrUserInUse            = errors.New("user is referenced by incidents")
	ErrOrganizationNotFound = errors.New("organization not found")
)
