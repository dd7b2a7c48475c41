// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	serviceNameConstraint = "services_organization_id_name_key"
	serviceOrgConstraint  = "services_organization_id_fkey"
)

const serviceColumns = `id, name, description, status, organization_id, created_at, updated_at`

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.Status,
		&s.OrganizationID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err, serviceNameConstraint):
		return catalog.ErrServiceNameExists
	case postgres.IsForeignKeyViolation(err, serviceOrgConstraint):
		return catalog.ErrOrganizationNotFound
	case postgres.IsCheckViolation(err):
		return catalog.ErrInvalidStatus
	}
	return err
}

// CreateServiceTx inserts a service within a transaction.
func (r *Repository) CreateServiceTx(ctx context.Context, tx pgx.Tx, service *domain.Service) error {
	query := `
		INSERT INTO services (name, description, status, organization_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		service.Name,
		service.Description,
		service.Status,
		service.OrganizationID,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert service: %w", mapWriteError(err))
	}
	return nil
}

// GetServiceByID retrieves a service by its ID.
func (r *Repository) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	service, err := scanService(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get service by id: %w", err)
	}
	return service, nil
}

// GetServiceByName retrieves a service by its name within an organization.
func (r *Repository) GetServiceByName(ctx context.Context, organizationID, name string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 AND name = $2`
	service, err := scanService(r.db.QueryRow(ctx, query, organizationID, name))
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get service by name: %w", err)
	}
	return service, nil
}

// GetServiceForUpdateTx retrieves a service and locks its row until the
// transaction ends.
func (r *Repository) GetServiceForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1 FOR UPDATE`
	service, err := scanService(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock service: %w", err)
	}
	return service, nil
}

// ListServices retrieves services matching filter ordered by name.
func (r *Repository) ListServices(ctx context.Context, filter catalog.ServiceFilter) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`

	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.OrganizationID != nil {
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", argNum))
		args = append(args, *filter.OrganizationID)
		argNum++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *service)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	return services, nil
}

// UpdateService updates the editable fields of a service. Status is not
// written here.
func (r *Repository) UpdateService(ctx context.Context, service *domain.Service) error {
	query := `
		UPDATE services
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.Name,
		service.Description,
	).Scan(&service.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		return fmt.Errorf("update service: %w", mapWriteError(err))
	}
	return nil
}

// UpdateServiceStatusTx writes service.Status within a transaction.
func (r *Repository) UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, service *domain.Service) error {
	query := `
		UPDATE services
		SET status = $2, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query, service.ID, service.Status).Scan(&service.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		return fmt.Errorf("update service status: %w", mapWriteError(err))
	}
	return nil
}

// DeleteService deletes a service. Ledger entries and incidents cascade.
func (r *Repository) DeleteService(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if result.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// CreateStatusEntryTx appends a ledger entry within a transaction.
func (r *Repository) CreateStatusEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.StatusLedgerEntry) error {
	query := `
		INSERT INTO service_status_history (service_id, old_status, new_status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		entry.ServiceID,
		entry.OldStatus,
		entry.NewStatus,
		entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert status entry: %w", mapWriteError(err))
	}
	return nil
}

// ListStatusHistory retrieves up to limit ledger entries of a service, newest first.
func (r *Repository) ListStatusHistory(ctx context.Context, serviceID string, limit int) ([]domain.StatusLedgerEntry, error) {
	query := `
		SELECT id, service_id, old_status, new_status, notes, created_at, updated_at
		FROM service_status_history
		WHERE service_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.StatusLedgerEntry, 0)
	for rows.Next() {
		var e domain.StatusLedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.ServiceID,
			&e.OldStatus,
			&e.NewStatus,
			&e.Notes,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan status entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return entries, nil
}
