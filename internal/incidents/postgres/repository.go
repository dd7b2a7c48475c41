// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/incidents"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	incidentServiceConstraint = "incidents_service_id_fkey"
	incidentCreatorConstraint = "incidents_created_by_id_fkey"
	updateCreatorConstraint   = "incident_updates_created_by_id_fkey"
	updateIncidentConstraint  = "incident_updates_incident_id_fkey"
)

const incidentColumns = `id, title, description, status, impact, service_id, organization_id,
	created_by_id, resolved_at, created_at, updated_at`

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
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

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var i domain.Incident
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Status,
		&i.Impact,
		&i.ServiceID,
		&i.OrganizationID,
		&i.CreatedByID,
		&i.ResolvedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, err
	}
	return &i, nil
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsForeignKeyViolation(err, incidentServiceConstraint):
		return incidents.ErrServiceNotFound
	case postgres.IsForeignKeyViolation(err, incidentCreatorConstraint),
		postgres.IsForeignKeyViolation(err, updateCreatorConstraint):
		return incidents.ErrUserNotFound
	case postgres.IsForeignKeyViolation(err, updateIncidentConstraint):
		return incidents.ErrIncidentNotFound
	case postgres.IsCheckViolation(err):
		return incidents.ErrInvalidStatus
	}
	return err
}

// CreateIncident inserts a new incident. An incident opened as resolved gets
// resolved_at equal to its created_at.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		WITH stamp AS (SELECT clock_timestamp() AS ts)
		INSERT INTO incidents (title, description, status, impact, service_id, organization_id, created_by_id,
			resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			CASE WHEN $8::boolean THEN (SELECT ts FROM stamp) END, (SELECT ts FROM stamp), (SELECT ts FROM stamp))
		RETURNING id, resolved_at, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Impact,
		incident.ServiceID,
		incident.OrganizationID,
		incident.CreatedByID,
		incident.Status == domain.IncidentStatusResolved,
	).Scan(&incident.ID, &incident.ResolvedAt, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", mapWriteError(err))
	}
	return nil
}

func (r *Repository) getIncident(ctx context.Context, q querier, query, id string) (*domain.Incident, error) {
	incident, err := scanIncident(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, incidents.ErrIncidentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return r.getIncident(ctx, r.db, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
}

// GetIncidentForUpdateTx retrieves an incident and locks its row until the
// transaction ends.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	return r.getIncident(ctx, tx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, id)
}

// ListIncidents retrieves incidents matching filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.ServiceID != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argNum)
		args = append(args, *filter.ServiceID)
		argNum++
	}
	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND organization_id = $%d", argNum)
		args = append(args, *filter.OrganizationID)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.ActiveOnly {
		query += " AND resolved_at IS NULL"
	}

	query += " ORDER BY created_at DESC, id"

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
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, *incident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return result, nil
}

// UpdateIncidentTx writes every editable field of an incident within a
// transaction. Callers hold the row lock from GetIncidentForUpdateTx.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, impact = $5, resolved_at = $6, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Impact,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", mapWriteError(err))
	}
	return nil
}

// UpdateIncidentStatusTx writes status and resolved_at within a transaction.
func (r *Repository) UpdateIncidentStatusTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET status = $2, resolved_at = $3, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query, incident.ID, incident.Status, incident.ResolvedAt).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident status: %w", mapWriteError(err))
	}
	return nil
}

// DeleteIncident deletes an incident. Its updates cascade.
func (r *Repository) DeleteIncident(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// CreateIncidentUpdateTx inserts an incident update within a transaction.
func (r *Repository) CreateIncidentUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (incident_id, message, status, created_by_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		update.IncidentID,
		update.Message,
		update.Status,
		update.CreatedByID,
	).Scan(&update.ID, &update.CreatedAt, &update.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident update: %w", mapWriteError(err))
	}
	return nil
}

// ListIncidentUpdates retrieves the updates of an incident, newest first.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string, offset, limit int) ([]domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, message, status, created_by_id, created_at, updated_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at DESC, id
		OFFSET $2
	`
	args := []interface{}{incidentID, offset}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.IncidentUpdate, 0)
	for rows.Next() {
		var u domain.IncidentUpdate
		err := rows.Scan(
			&u.ID,
			&u.IncidentID,
			&u.Message,
			&u.Status,
			&u.CreatedByID,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident updates: %w", err)
	}

	return updates, nil
}
