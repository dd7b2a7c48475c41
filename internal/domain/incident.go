package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IncidentImpact represents how badly an incident affects users.
type IncidentImpact string

// Incident impacts.
const (
	IncidentImpactNone     IncidentImpact = "none"
	IncidentImpactMinor    IncidentImpact = "minor"
	IncidentImpactMajor    IncidentImpact = "major"
	IncidentImpactCritical IncidentImpact = "critical"
)

// IsValid checks if the incident impact is valid.
func (i IncidentImpact) IsValid() bool {
	switch i {
	case IncidentImpactNone, IncidentImpactMinor,
		IncidentImpactMajor, IncidentImpactCritical:
		return true
	}
	return false
}

// Incident is an event affecting a service.
type Incident struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         IncidentStatus `json:"status"`
	Impact         IncidentImpact `json:"impact"`
	ServiceID      string         `json:"service_id"`
	OrganizationID string         `json:"organization_id"`
	CreatedByID    string         `json:"created_by_id"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsActive reports whether the incident has not been resolved yet.
func (i *Incident) IsActive() bool {
	return i.ResolvedAt == nil
}

// IncidentUpdate is a progress note on an incident. Creating one moves
// the parent incident to Status.
type IncidentUpdate struct {
	ID          string         `json:"id"`
	IncidentID  string         `json:"incident_id"`
	Message     string         `json:"message"`
	Status      IncidentStatus `json:"status"`
	CreatedByID string         `json:"created_by_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
