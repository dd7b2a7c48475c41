package catalog

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for catalog data operations.
type Repository interface {
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	GetServiceByName(ctx context.Context, organizationID, name string) (*domain.Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	DeleteService(ctx context.Context, id string) error

	// Status ledger reads, most recent first.
	ListStatusHistory(ctx context.Context, serviceID string, limit int) ([]domain.StatusLedgerEntry, error)

	// Transaction methods
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateServiceTx(ctx context.Context, tx pgx.Tx, service *domain.Service) error
	GetServiceForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Service, error)
	UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, service *domain.Service) error
	CreateStatusEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.StatusLedgerEntry) error
}

// ServiceFilter represents filter criteria for listing services.
// A zero Limit means no limit.
type ServiceFilter struct {
	OrganizationID *string
	Status         *domain.ServiceStatus
	Offset         int
	Limit          int
}
