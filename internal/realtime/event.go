// Package realtime keeps live subscriber connections per organization and
// pushes state-change events to them.
package realtime

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
)

// Event types pushed to subscribers.
const (
	EventIncidentCreated      = "INCIDENT_CREATED"
	EventIncidentUpdated      = "INCIDENT_UPDATED"
	EventServiceStatusChanged = "SERVICE_STATUS_CHANGED"
)

// Event is the envelope written to subscribers as a JSON text frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode serializes event as one compact JSON document. HTML characters are
// written as-is so text fields reach subscribers unescaped.
func Encode(event Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Timestamp marshals as ISO-8601 in UTC with microsecond precision and a
// numeric offset, e.g. 2024-01-22T10:00:00.123456+00:00. The fraction is
// omitted when it is zero.
type Timestamp time.Time

const (
	isoLayout       = "2006-01-02T15:04:05-07:00"
	isoLayoutMicros = "2006-01-02T15:04:05.000000-07:00"
)

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	tt := time.Time(t).UTC()
	layout := isoLayoutMicros
	if tt.Nanosecond()/int(time.Microsecond) == 0 {
		layout = isoLayout
	}
	b := make([]byte, 0, len(layout)+2)
	b = append(b, '"')
	b = tt.AppendFormat(b, layout)
	b = append(b, '"')
	return b, nil
}

func timestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}

// IncidentCreatedData is the payload of INCIDENT_CREATED.
type IncidentCreatedData struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Impact      string    `json:"impact"`
	ServiceID   string    `json:"service_id"`
	CreatedAt   Timestamp `json:"created_at"`
}

// NewIncidentCreated builds the INCIDENT_CREATED event for incident.
func NewIncidentCreated(incident *domain.Incident) Event {
	return Event{
		Type: EventIncidentCreated,
		Data: IncidentCreatedData{
			ID:          incident.ID,
			Title:       incident.Title,
			Description: incident.Description,
			Status:      string(incident.Status),
			Impact:      string(incident.Impact),
			ServiceID:   incident.ServiceID,
			CreatedAt:   Timestamp(incident.CreatedAt),
		},
	}
}

// IncidentUpdatedData is the payload of INCIDENT_UPDATED.
type IncidentUpdatedData struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incident_id"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	ResolvedAt *Timestamp `json:"resolved_at"`
	CreatedAt  Timestamp  `json:"created_at"`
}

// NewIncidentUpdated builds the INCIDENT_UPDATED event for an update
// and the incident state it produced.
func NewIncidentUpdated(update *domain.IncidentUpdate, incident *domain.Incident) Event {
	return Event{
		Type: EventIncidentUpdated,
		Data: IncidentUpdatedData{
			ID:         update.ID,
			IncidentID: update.IncidentID,
			Message:    update.Message,
			Status:     string(update.Status),
			ResolvedAt: timestampPtr(incident.ResolvedAt),
			CreatedAt:  Timestamp(update.CreatedAt),
		},
	}
}

// ServiceStatusChangedData is the payload of SERVICE_STATUS_CHANGED.
type ServiceStatusChangedData struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Notes     *string   `json:"notes"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// NewServiceStatusChanged builds the SERVICE_STATUS_CHANGED event for a
// service and the ledger entry recording the transition.
func NewServiceStatusChanged(service *domain.Service, entry *domain.StatusLedgerEntry) Event {
	return Event{
		Type: EventServiceStatusChanged,
		Data: ServiceStatusChangedData{
			ID:        service.ID,
			Name:      service.Name,
			OldStatus: string(entry.OldStatus),
			NewStatus: string(entry.NewStatus),
			Notes:     entry.Notes,
			UpdatedAt: Timestamp(service.UpdatedAt),
		},
	}
}
