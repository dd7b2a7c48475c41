// Package catalog provides HTTP handlers and business logic for services,
// their status transitions and the status ledger.
package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultServicesLimit = 100
	MaxServicesLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: ErrOrganizationNotFound, Status: http.StatusNotFound},
	{Error: ErrServiceNameExists, Status: http.StatusBadRequest},
	{Error: ErrInvalidServiceName, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrStatusUnchanged, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterPublicRoutes registers read-only routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/services", h.ListServices)
	r.Get("/services/{id}", h.GetService)
	r.Get("/services/{id}/history", h.GetStatusHistory)
	r.Get("/organizations/{organization_id}/status-summary", h.GetStatusSummary)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/services", h.CreateService)
	r.Patch("/services/{id}", h.UpdateService)
	r.Delete("/services/{id}", h.DeleteService)
	r.Post("/services/{id}/status", h.ChangeStatus)
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	Name           string  `json:"name" validate:"required,min=1,max=100"`
	Description    *string `json:"description"`
	Status         string  `json:"status" validate:"omitempty,oneof=operational degraded partial_outage major_outage"`
	OrganizationID string  `json:"organization_id" validate:"required,uuid"`
}

// UpdateServiceRequest represents the request body for updating a service.
type UpdateServiceRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description"`
}

// ToPatch converts the request to a service patch.
func (r *UpdateServiceRequest) ToPatch() *ServicePatch {
	patch := &ServicePatch{}
	if r.Name != nil {
		patch.SetName(*r.Name)
	}
	if r.Description != nil {
		patch.SetDescription(*r.Description)
	}
	return patch
}

// ChangeStatusRequest represents the request body for a status transition.
type ChangeStatusRequest struct {
	Status string  `json:"status" validate:"required,oneof=operational degraded partial_outage major_outage"`
	Notes  *string `json:"notes"`
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.CreateService(r.Context(), CreateServiceInput{
		Name:           req.Name,
		Description:    req.Description,
		Status:         domain.ServiceStatus(req.Status),
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// GetService handles GET /services/{id}. The response embeds recent status history.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceID(w, r)
	if !ok {
		return
	}

	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	service, err := h.service.GetServiceWithHistory(r.Context(), id, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, DefaultServicesLimit, MaxServicesLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := ServiceFilter{Offset: page.Offset, Limit: page.Limit}

	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		orgID, err := httputil.ParseID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		filter.OrganizationID = &orgID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.ServiceStatus(status)
		filter.Status = &s
	}

	services, err := h.service.ListServices(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// UpdateService handles PATCH /services/{id}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceID(w, r)
	if !ok {
		return
	}

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.UpdateService(r.Context(), id, req.ToPatch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// DeleteService handles DELETE /services/{id}.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteService(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// ChangeStatus handles POST /services/{id}/status.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceID(w, r)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.ChangeStatus(r.Context(), id, domain.ServiceStatus(req.Status), req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// GetStatusHistory handles GET /services/{id}/history.
func (h *Handler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceID(w, r)
	if !ok {
		return
	}

	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListStatusHistory(r.Context(), id, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// GetStatusSummary handles GET /organizations/{organization_id}/status-summary.
func (h *Handler) GetStatusSummary(w http.ResponseWriter, r *http.Request) {
	orgID, err := httputil.ParseID(chi.URLParam(r, "organization_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	summary, err := h.service.OrganizationSummary(r.Context(), orgID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

func serviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := httputil.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid service id")
		return "", false
	}
	return id, true
}

func historyLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return DefaultHistoryLimit, true
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 {
		httputil.Error(w, http.StatusBadRequest, httputil.ErrInvalidLimit.Error())
		return 0, false
	}
	return min(parsed, MaxHistoryLimit), true
}
