package domain

import "time"

// ServiceStatus represents the operational status of a service.
type ServiceStatus string

// Service statuses.
const (
	ServiceStatusOperational   ServiceStatus = "operational"
	ServiceStatusDegraded      ServiceStatus = "degraded"
	ServiceStatusPartialOutage ServiceStatus = "partial_outage"
	ServiceStatusMajorOutage   ServiceStatus = "major_outage"
)

// IsValid checks if the service status is valid.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusOperational, ServiceStatusDegraded,
		ServiceStatusPartialOutage, ServiceStatusMajorOutage:
		return true
	}
	return false
}

// Service represents a monitored service owned by an organization.
// Status always equals the NewStatus of the latest ledger entry for the service.
type Service struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    *string       `json:"description"`
	Status         ServiceStatus `json:"status"`
	OrganizationID string        `json:"organization_id"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StatusLedgerEntry is an immutable record of one status transition.
// The entry written on service creation has OldStatus == NewStatus.
type StatusLedgerEntry struct {
	ID        string        `json:"id"`
	ServiceID string        `json:"service_id"`
	OldStatus ServiceStatus `json:"old_status"`
	NewStatus ServiceStatus `json:"new_status"`
	Notes     *string       `json:"notes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ServiceWithHistory is a service together with its recent status ledger.
type ServiceWithHistory struct {
	Service
	StatusHistory []StatusLedgerEntry `json:"status_history"`
}

// ServiceStatusItem is the per-service row of an organization summary.
type ServiceStatusItem struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    ServiceStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusSummary aggregates current service statuses of one organization.
type StatusSummary struct {
	TotalServices      int                 `json:"total_services"`
	OperationalCount   int                 `json:"operational_count"`
	DegradedCount      int                 `json:"degraded_count"`
	PartialOutageCount int                 `json:"partial_outage_count"`
	MajorOutageCount   int                 `json:"major_outage_count"`
	Services           []ServiceStatusItem `json:"services"`
}

// Add tallies a service into the summary.
func (s *StatusSummary) Add(service Service) {
	s.TotalServices++
	switch service.Status {
	case ServiceStatusOperational:
		s.OperationalCount++
	case ServiceStatusDegraded:
		s.DegradedCount++
	case ServiceStatusPartialOutage:
		s.PartialOutageCount++
	case ServiceStatusMajorOutage:
		s.MajorOutageCount++
	}
	s.Services = append(s.Services, ServiceStatusItem{
		ID:        service.ID,
		Name:      service.Name,
		Status:    service.Status,
		UpdatedAt: service.UpdatedAt,
	})
}
