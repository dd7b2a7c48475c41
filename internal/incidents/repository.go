package incidents

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	DeleteIncident(ctx context.Context, id string) error

	ListIncidentUpdates(ctx context.Context, incidentID string, offset, limit int) ([]domain.IncidentUpdate, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	CreateIncidentUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
}

// IncidentFilter holds filter options for listing incidents.
// Results are ordered by creation time, newest first.
type IncidentFilter struct {
	ServiceID      *string
	OrganizationID *string
	Status         *domain.IncidentStatus
	ActiveOnly     bool
	Offset         int
	Limit          int
}
