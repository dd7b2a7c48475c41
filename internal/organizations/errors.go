package organizations

import "errors"

// Domain errors for organizations module.
var (
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrSubdomainExists       = errors.New("subdomain already registered")
	ErrInvalidSubdomain      = errors.New("subdomain may contain only letters, digits and hyphens")
	ErrInvalidName           = errors.New("name must be between 1 and 255 characters")
	ErrTeamNotFound          = errors.New("team not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserNotInOrganization = errors.New("user does not belong to the team's organization")
	ErrNotTeamMember         = errors.New("user is not a member of the team")
)
