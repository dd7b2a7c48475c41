package catalog

import "errors"

// Domain errors for catalog module.
var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrServiceNameExists    = errors.New("service with this name already exists in the organization")
	ErrInvalidServiceName   = errors.New("service name must be between 1 and 100 characters")
	ErrInvalidStatus        = errors.New("invalid service status")
	ErrStatusUnchanged      = errors.New("service is already in this status")
	ErrOrganizationNotFound = errors.New("organization not found")
)
