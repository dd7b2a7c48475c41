package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/jackc/pgx/v5"
)

// Notes recorded on the ledger entry written at service creation.
const initialStatusNotes = "Initial service creation"

// Service name length bounds, in characters.
const (
	MinServiceNameLength = 1
	MaxServiceNameLength = 100
)

// Status history limits.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// OrganizationChecker reports whether an organization exists.
type OrganizationChecker interface {
	OrganizationExists(ctx context.Context, id string) (bool, error)
}

// Broadcaster pushes events to the live subscribers of an organization.
type Broadcaster interface {
	BroadcastToOrganization(ctx context.Context, organizationID string, event realtime.Event)
}

// Service implements catalog business logic: service records, the status
// transition engine and the status ledger.
type Service struct {
	repo        Repository
	orgs        OrganizationChecker
	broadcaster Broadcaster
}

// NewService creates a new catalog service.
func NewService(repo Repository, orgs OrganizationChecker, broadcaster Broadcaster) *Service {
	return &Service{
		repo:        repo,
		orgs:        orgs,
		broadcaster: broadcaster,
	}
}

// CreateServiceInput holds data for creating a service.
type CreateServiceInput struct {
	Name           string
	Description    *string
	Status         domain.ServiceStatus
	OrganizationID string
}

// ServicePatch is a partial update of a service. It cannot touch the
// status, which changes only through ChangeStatus.
type ServicePatch struct {
	name        *string
	description *string
}

// SetName sets a new service name.
func (p *ServicePatch) SetName(name string) *ServicePatch {
	p.name = &name
	return p
}

// SetDescription sets a new service description.
func (p *ServicePatch) SetDescription(description string) *ServicePatch {
	p.description = &description
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p *ServicePatch) IsEmpty() bool {
	return p.name == nil && p.description == nil
}

func normalizeServiceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinServiceNameLength || n > MaxServiceNameLength {
		return "", ErrInvalidServiceName
	}
	return name, nil
}

// CreateService creates a service together with its initial ledger entry.
func (s *Service) CreateService(ctx context.Context, input CreateServiceInput) (*domain.Service, error) {
	name, err := normalizeServiceName(input.Name)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.ServiceStatusOperational
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	exists, err := s.orgs.OrganizationExists(ctx, input.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return nil, ErrOrganizationNotFound
	}

	if err := s.ensureNameAvailable(ctx, input.OrganizationID, name, ""); err != nil {
		return nil, err
	}

	service := &domain.Service{
		Name:           name,
		Description:    input.Description,
		Status:         status,
		OrganizationID: input.OrganizationID,
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateServiceTx(ctx, tx, service); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	notes := initialStatusNotes
	entry := &domain.StatusLedgerEntry{
		ServiceID: service.ID,
		OldStatus: status,
		NewStatus: status,
		Notes:     &notes,
	}
	if err := s.repo.CreateStatusEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("create initial status entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return service, nil
}

// ChangeStatus moves a service to newStatus and appends the transition to
// the ledger in one transaction. Transitions of the same service are
// serialized by a row lock. Subscribers of the owning organization are
// notified after commit.
func (s *Service) ChangeStatus(ctx context.Context, serviceID string, newStatus domain.ServiceStatus, notes *string) (*domain.Service, error) {
	if !newStatus.IsValid() {
		return nil, ErrInvalidStatus
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	service, err := s.repo.GetServiceForUpdateTx(ctx, tx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	if service.Status == newStatus {
		return nil, ErrStatusUnchanged
	}

	entry := &domain.StatusLedgerEntry{
		ServiceID: service.ID,
		OldStatus: service.Status,
		NewStatus: newStatus,
		Notes:     notes,
	}
	if err := s.repo.CreateStatusEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("create status entry: %w", err)
	}

	service.Status = newStatus
	if err := s.repo.UpdateServiceStatusTx(ctx, tx, service); err != nil {
		return nil, fmt.Errorf("update service status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.ServiceStatusTransitions.WithLabelValues(string(entry.OldStatus), string(entry.NewStatus)).Inc()
	ctxlog.FromContext(ctx).Info("service status changed",
		"service_id", service.ID,
		"old_status", entry.OldStatus,
		"new_status", entry.NewStatus,
	)

	s.broadcaster.BroadcastToOrganization(ctx, service.OrganizationID, realtime.NewServiceStatusChanged(service, entry))

	return service, nil
}

// GetService retrieves a service by ID.
func (s *Service) GetService(ctx context.Context, id string) (*domain.Service, error) {
	service, err := s.repo.GetServiceByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return service, nil
}

// GetServiceWithHistory retrieves a service and its most recent ledger entries.
func (s *Service) GetServiceWithHistory(ctx context.Context, id string, limit int) (*domain.ServiceWithHistory, error) {
	service, err := s.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListStatusHistory(ctx, id, clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}

	return &domain.ServiceWithHistory{
		Service:       *service,
		StatusHistory: history,
	}, nil
}

// ListServices lists services matching filter.
func (s *Service) ListServices(ctx context.Context, filter ServiceFilter) ([]domain.Service, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	services, err := s.repo.ListServices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// UpdateService applies patch to a service.
func (s *Service) UpdateService(ctx context.Context, id string, patch *ServicePatch) (*domain.Service, error) {
	service, err := s.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return service, nil
	}

	if patch.name != nil {
		name, err := normalizeServiceName(*patch.name)
		if err != nil {
			return nil, err
		}
		if name != service.Name {
			if err := s.ensureNameAvailable(ctx, service.OrganizationID, name, service.ID); err != nil {
				return nil, err
			}
		}
		service.Name = name
	}
	if patch.description != nil {
		service.Description = patch.description
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	return service, nil
}

// DeleteService deletes a service together with its ledger and incidents.
func (s *Service) DeleteService(ctx context.Context, id string) error {
	if err := s.repo.DeleteService(ctx, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return nil
}

// ListStatusHistory returns the most recent ledger entries of a service,
// newest first.
func (s *Service) ListStatusHistory(ctx context.Context, serviceID string, limit int) ([]domain.StatusLedgerEntry, error) {
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListStatusHistory(ctx, serviceID, clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}

// OrganizationSummary tallies the current status of every service of an
// organization.
func (s *Service) OrganizationSummary(ctx context.Context, organizationID string) (*domain.StatusSummary, error) {
	exists, err := s.orgs.OrganizationExists(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return nil, ErrOrganizationNotFound
	}

	services, err := s.repo.ListServices(ctx, ServiceFilter{OrganizationID: &organizationID})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	summary := &domain.StatusSummary{Services: make([]domain.ServiceStatusItem, 0, len(services))}
	for _, service := range services {
		summary.Add(service)
	}
	return summary, nil
}

func (s *Service) ensureNameAvailable(ctx context.Context, organizationID, name, selfID string) error {
	existing, err := s.repo.GetServiceByName(ctx, organizationID, name)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil
		}
		return fmt.Errorf("check service name: %w", err)
	}
	if existing.ID != selfID {
		return ErrServiceNameExists
	}
	return nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
