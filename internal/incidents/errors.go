package incidents

import "errors"

// Domain errors for incidents module.
var (
	ErrIncidentNotFound            = errors.New("incident not found")
	ErrServiceNotFound             = errors.New("service not found")
	ErrUserNotFound                = errors.New("user not found")
	ErrCreatorRequired             = errors.New("created_by_id is required")
	ErrCreatorInactive             = errors.New("creator is not an active user")
	ErrCreatorOrganizationMismatch = errors.New("creator does not belong to the organization")
	ErrOrganizationMismatch        = errors.New("service does not belong to the organization")
	ErrInvalidStatus               = errors.New("invalid incident status")
	ErrInvalidImpact               = errors.New("invalid incident impact")
	ErrInvalidTitle                = errors.New("incident title must be between 1 and 200 characters")
	ErrInvalidMessage              = errors.New("incident update message is required")
)
