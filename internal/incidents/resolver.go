package incidents

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/realtime"
)

// ServiceReader looks up services of the catalog.
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

// UserReader looks up users.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Broadcaster pushes events to the live subscribers of an organization.
type Broadcaster interface {
	BroadcastToOrganization(ctx context.Context, organizationID string, event realtime.Event)
}
