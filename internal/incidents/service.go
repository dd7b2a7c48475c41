package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/jackc/pgx/v5"
)

// MaxTitleLength is the maximum incident title length, in characters.
const MaxTitleLength = 200

// Service implements the incident lifecycle.
type Service struct {
	repo        Repository
	services    ServiceReader
	users       UserReader
	broadcaster Broadcaster
}

// NewService creates a new incident service.
func NewService(repo Repository, services ServiceReader, users UserReader, broadcaster Broadcaster) *Service {
	return &Service{
		repo:        repo,
		services:    services,
		users:       users,
		broadcaster: broadcaster,
	}
}

// CreateIncidentInput holds data for creating an incident.
// An empty OrganizationID defaults to the service's organization.
type CreateIncidentInput struct {
	Title          string
	Description    string
	Status         domain.IncidentStatus
	Impact         domain.IncidentImpact
	ServiceID      string
	OrganizationID string
	CreatedByID    string
}

// CreateIncidentUpdateInput holds data for posting an incident update.
type CreateIncidentUpdateInput struct {
	IncidentID  string
	Message     string
	Status      domain.IncidentStatus
	CreatedByID string
}

// IncidentPatch is a partial update of an incident. Fields left unset are
// not touched.
type IncidentPatch struct {
	title       *string
	description *string
	status      *domain.IncidentStatus
	impact      *domain.IncidentImpact
	resolvedAt  *time.Time
}

// SetTitle sets a new title.
func (p *IncidentPatch) SetTitle(title string) *IncidentPatch {
	p.title = &title
	return p
}

// SetDescription sets a new description.
func (p *IncidentPatch) SetDescription(description string) *IncidentPatch {
	p.description = &description
	return p
}

// SetStatus sets a new status without recording an incident update.
func (p *IncidentPatch) SetStatus(status domain.IncidentStatus) *IncidentPatch {
	p.status = &status
	return p
}

// SetImpact sets a new impact.
func (p *IncidentPatch) SetImpact(impact domain.IncidentImpact) *IncidentPatch {
	p.impact = &impact
	return p
}

// SetResolvedAt sets the resolution time explicitly.
func (p *IncidentPatch) SetResolvedAt(t time.Time) *IncidentPatch {
	p.resolvedAt = &t
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p *IncidentPatch) IsEmpty() bool {
	return p.title == nil && p.description == nil && p.status == nil &&
		p.impact == nil && p.resolvedAt == nil
}

// apply writes the fields named by the patch onto incident.
func (p *IncidentPatch) apply(incident *domain.Incident) error {
	if p.title != nil {
		title, err := normalizeTitle(*p.title)
		if err != nil {
			return err
		}
		incident.Title = title
	}
	if p.description != nil {
		incident.Description = *p.description
	}
	if p.status != nil {
		if !p.status.IsValid() {
			return ErrInvalidStatus
		}
		incident.Status = *p.status
	}
	if p.impact != nil {
		if !p.impact.IsValid() {
			return ErrInvalidImpact
		}
		incident.Impact = *p.impact
	}
	if p.resolvedAt != nil {
		resolvedAt := p.resolvedAt.UTC()
		incident.ResolvedAt = &resolvedAt
	}
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n == 0 || n > MaxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

// CreateIncident opens an incident against a service and notifies the
// subscribers of the owning organization once it is stored.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.IncidentStatusInvestigating
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	impact := input.Impact
	if impact == "" {
		impact = domain.IncidentImpactMinor
	}
	if !impact.IsValid() {
		return nil, ErrInvalidImpact
	}

	service, err := s.services.GetService(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	orgID := input.OrganizationID
	if orgID == "" {
		orgID = service.OrganizationID
	}
	if orgID != service.OrganizationID {
		return nil, ErrOrganizationMismatch
	}

	creator, err := s.resolveCreator(ctx, input.CreatedByID, orgID)
	if err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		Title:          title,
		Description:    input.Description,
		Status:         status,
		Impact:         impact,
		ServiceID:      service.ID,
		OrganizationID: orgID,
		CreatedByID:    creator.ID,
	}
	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentsOpened.WithLabelValues(string(incident.Impact)).Inc()
	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", incident.ID,
		"service_id", incident.ServiceID,
		"status", incident.Status,
		"impact", incident.Impact,
	)

	s.broadcaster.BroadcastToOrganization(ctx, incident.OrganizationID, realtime.NewIncidentCreated(incident))

	return incident, nil
}

// CreateIncidentUpdate records a progress note and moves the incident to the
// note's status in one transaction. The first move into resolved stamps
// ResolvedAt. Later moves never clear it.
func (s *Service) CreateIncidentUpdate(ctx context.Context, input CreateIncidentUpdateInput) (*domain.IncidentUpdate, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrInvalidMessage
	}
	if !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.GetIncident(ctx, input.IncidentID)
	if err != nil {
		return nil, err
	}

	creator, err := s.resolveCreator(ctx, input.CreatedByID, current.OrganizationID)
	if err != nil {
		return nil, err
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

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, input.IncidentID)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	update := &domain.IncidentUpdate{
		IncidentID:  incident.ID,
		Message:     message,
		Status:      input.Status,
		CreatedByID: creator.ID,
	}
	if err := s.repo.CreateIncidentUpdateTx(ctx, tx, update); err != nil {
		return nil, fmt.Errorf("create incident update: %w", err)
	}

	previous := incident.Status
	incident.Status = input.Status
	if input.Status == domain.IncidentStatusResolved && incident.ResolvedAt == nil {
		resolvedAt := update.CreatedAt
		if resolvedAt.IsZero() {
			resolvedAt = time.Now().UTC()
		}
		incident.ResolvedAt = &resolvedAt
	}
	if err := s.repo.UpdateIncidentStatusTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("update incident status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.IncidentUpdates.WithLabelValues(string(update.Status)).Inc()
	ctxlog.FromContext(ctx).Info("incident updated",
		"incident_id", incident.ID,
		"old_status", previous,
		"new_status", incident.Status,
	)

	s.broadcaster.BroadcastToOrganization(ctx, incident.OrganizationID, realtime.NewIncidentUpdated(update, incident))

	return update, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents lists incidents matching filter, newest first.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	incidents, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// ListIncidentsByService lists the incidents of one service, newest first.
func (s *Service) ListIncidentsByService(ctx context.Context, serviceID string, offset, limit int) ([]domain.Incident, error) {
	if _, err := s.services.GetService(ctx, serviceID); err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	return s.ListIncidents(ctx, IncidentFilter{ServiceID: &serviceID, Offset: offset, Limit: limit})
}

// ListIncidentsByOrganization lists the incidents of one organization, newest first.
func (s *Service) ListIncidentsByOrganization(ctx context.Context, organizationID string, offset, limit int) ([]domain.Incident, error) {
	return s.ListIncidents(ctx, IncidentFilter{OrganizationID: &organizationID, Offset: offset, Limit: limit})
}

// ListActiveIncidents lists unresolved incidents, optionally restricted to
// one organization.
func (s *Service) ListActiveIncidents(ctx context.Context, organizationID *string, offset, limit int) ([]domain.Incident, error) {
	return s.ListIncidents(ctx, IncidentFilter{
		OrganizationID: organizationID,
		ActiveOnly:     true,
		Offset:         offset,
		Limit:          limit,
	})
}

// UpdateIncident applies patch to an incident. The row is locked while the
// patch is applied so fields it does not name keep the values committed by
// concurrent incident updates. No incident update is recorded and no event
// is broadcast.
func (s *Service) UpdateIncident(ctx context.Context, id string, patch *IncidentPatch) (*domain.Incident, error) {
	if patch.IsEmpty() {
		return s.GetIncident(ctx, id)
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

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if err := patch.apply(incident); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return incident, nil
}

// DeleteIncident deletes an incident together with its updates.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return nil
}

// ListIncidentUpdates lists the updates of an incident, newest first.
func (s *Service) ListIncidentUpdates(ctx context.Context, incidentID string, offset, limit int) ([]domain.IncidentUpdate, error) {
	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	updates, err := s.repo.ListIncidentUpdates(ctx, incidentID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	return updates, nil
}

// resolveCreator loads the author of an incident or update. The author must
// be active and belong to organizationID.
func (s *Service) resolveCreator(ctx context.Context, userID, organizationID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrCreatorRequired
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get creator: %w", err)
	}
	if !user.IsActive {
		return nil, ErrCreatorInactive
	}
	if user.OrganizationID != organizationID {
		return nil, ErrCreatorOrganizationMismatch
	}
	return user, nil
}
