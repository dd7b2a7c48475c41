// Package incidents provides HTTP handlers and business logic for incidents
// and their progress updates.
package incidents

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultIncidentsLimit = 100
	MaxIncidentsLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrCreatorRequired, Status: http.StatusBadRequest},
	{Error: ErrCreatorInactive, Status: http.StatusBadRequest},
	{Error: ErrCreatorOrganizationMismatch, Status: http.StatusBadRequest},
	{Error: ErrOrganizationMismatch, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidImpact, Status: http.StatusBadRequest},
	{Error: ErrInvalidTitle, Status: http.StatusBadRequest},
	{Error: ErrInvalidMessage, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterPublicRoutes registers read-only routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/active", h.ListActiveIncidents)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Get("/incidents/{id}/updates", h.ListIncidentUpdates)
	r.Get("/services/{id}/incidents", h.ListServiceIncidents)
	r.Get("/organizations/{organization_id}/incidents", h.ListOrganizationIncidents)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/incidents", h.CreateIncident)
	r.Patch("/incidents/{id}", h.UpdateIncident)
	r.Delete("/incidents/{id}", h.DeleteIncident)
	r.Post("/incidents/{id}/updates", h.CreateIncidentUpdate)
}

// CreateIncidentRequest represents the request body for creating an incident.
// CreatedByID defaults to the authenticated user.
type CreateIncidentRequest struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description"`
	Status         string `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	Impact         string `json:"impact" validate:"omitempty,oneof=none minor major critical"`
	ServiceID      string `json:"service_id" validate:"required,uuid"`
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid"`
	CreatedByID    string `json:"created_by_id" validate:"omitempty,uuid"`
}

// UpdateIncidentRequest represents the request body for updating an incident.
type UpdateIncidentRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description"`
	Status      *string    `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	Impact      *string    `json:"impact" validate:"omitempty,oneof=none minor major critical"`
	ResolvedAt  *time.Time `json:"resolved_at"`
}

// ToPatch converts the request to an incident patch.
func (r *UpdateIncidentRequest) ToPatch() *IncidentPatch {
	patch := &IncidentPatch{}
	if r.Title != nil {
		patch.SetTitle(*r.Title)
	}
	if r.Description != nil {
		patch.SetDescription(*r.Description)
	}
	if r.Status != nil {
		patch.SetStatus(domain.IncidentStatus(*r.Status))
	}
	if r.Impact != nil {
		patch.SetImpact(domain.IncidentImpact(*r.Impact))
	}
	if r.ResolvedAt != nil {
		patch.SetResolvedAt(*r.ResolvedAt)
	}
	return patch
}

// CreateIncidentUpdateRequest represents the request body for posting an update.
type CreateIncidentUpdateRequest struct {
	Message     string `json:"message" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=investigating identified monitoring resolved"`
	CreatedByID string `json:"created_by_id" validate:"omitempty,uuid"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		Title:          req.Title,
		Description:    req.Description,
		Status:         domain.IncidentStatus(req.Status),
		Impact:         domain.IncidentImpact(req.Impact),
		ServiceID:      req.ServiceID,
		OrganizationID: req.OrganizationID,
		CreatedByID:    creatorID(r, req.CreatedByID),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid incident id")
	if !ok {
		return
	}

	incident, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := IncidentFilter{Offset: page.Offset, Limit: page.Limit}
	q := r.URL.Query()

	if raw := q.Get("organization_id"); raw != "" {
		orgID, err := httputil.ParseID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		filter.OrganizationID = &orgID
	}
	if raw := q.Get("service_id"); raw != "" {
		serviceID, err := httputil.ParseID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid service_id")
			return
		}
		filter.ServiceID = &serviceID
	}
	if status := q.Get("status"); status != "" {
		s := domain.IncidentStatus(status)
		filter.Status = &s
	}
	if active := q.Get("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid active")
			return
		}
		filter.ActiveOnly = v
	}

	incidents, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// ListActiveIncidents handles GET /incidents/active.
func (h *Handler) ListActiveIncidents(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var orgID *string
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		id, err := httputil.ParseID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		orgID = &id
	}

	incidents, err := h.service.ListActiveIncidents(r.Context(), orgID, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// ListServiceIncidents handles GET /services/{id}/incidents.
func (h *Handler) ListServiceIncidents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid service id")
	if !ok {
		return
	}

	page, err := httputil.ParsePage(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	incidents, err := h.service.ListIncidentsByService(r.Context(), id, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// ListOrganizationIncidents handles GET /organizations/{organization_id}/incidents.
func (h *Handler) ListOrganizationIncidents(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "organization_id", "invalid organization id")
	if !ok {
		return
	}

	page, err := httputil.ParsePage(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	incidents, err := h.service.ListIncidentsByOrganization(r.Context(), orgID, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// UpdateIncident handles PATCH /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid incident id")
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateIncident(r.Context(), id, req.ToPatch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid incident id")
	if !ok {
		return
	}

	if err := h.service.DeleteIncident(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// CreateIncidentUpdate handles POST /incidents/{id}/updates.
func (h *Handler) CreateIncidentUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid incident id")
	if !ok {
		return
	}

	var req CreateIncidentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	update, err := h.service.CreateIncidentUpdate(r.Context(), CreateIncidentUpdateInput{
		IncidentID:  id,
		Message:     req.Message,
		Status:      domain.IncidentStatus(req.Status),
		CreatedByID: creatorID(r, req.CreatedByID),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, update)
}

// ListIncidentUpdates handles GET /incidents/{id}/updates.
func (h *Handler) ListIncidentUpdates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid incident id")
	if !ok {
		return
	}

	page, err := httputil.ParsePage(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	updates, err := h.service.ListIncidentUpdates(r.Context(), id, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, updates)
}

// creatorID prefers an explicit creator over the authenticated caller.
func creatorID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return httputil.GetUserID(r.Context())
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, message string) (string, bool) {
	id, err := httputil.ParseID(chi.URLParam(r, param))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, message)
		return "", false
	}
	return id, true
}
