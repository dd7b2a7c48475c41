// Package organizations provides HTTP handlers and business logic for
// organizations (tenants) and their teams.
package organizations

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultOrganizationsLimit = 100
	MaxOrganizationsLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrOrganizationNotFound, Status: http.StatusNotFound},
	{Error: ErrTeamNotFound, Status: http.StatusNotFound},
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrNotTeamMember, Status: http.StatusNotFound},
	{Error: ErrSubdomainExists, Status: http.StatusConflict},
	{Error: identity.ErrEmailExists, Status: http.StatusConflict},
	{Error: ErrInvalidSubdomain, Status: http.StatusBadRequest},
	{Error: ErrInvalidName, Status: http.StatusBadRequest},
	{Error: ErrUserNotInOrganization, Status: http.StatusBadRequest},
	{Error: identity.ErrInvalidEmail, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the organizations module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new organizations handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterPublicRoutes registers routes available without authentication.
// Creating an organization is how a tenant signs up.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/organizations", h.CreateOrganization)
	r.Get("/organizations", h.ListOrganizations)
	r.Get("/organizations/by-subdomain/{subdomain}", h.GetOrganizationBySubdomain)
	r.Get("/organizations/{organization_id}", h.GetOrganization)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Patch("/organizations/{organization_id}", h.UpdateOrganization)
	r.Delete("/organizations/{organization_id}", h.DeleteOrganization)
	r.Get("/organizations/{organization_id}/teams", h.ListTeams)

	r.Post("/teams", h.CreateTeam)
	r.Post("/teams/{id}/members/{user_id}", h.AddTeamMember)
	r.Delete("/teams/{id}/members/{user_id}", h.RemoveTeamMember)
}

// CreateOrganizationRequest represents the request body for creating an organization.
type CreateOrganizationRequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Subdomain     string  `json:"subdomain" validate:"required,max=63"`
	Description   *string `json:"description"`
	AdminEmail    string  `json:"admin_email" validate:"required,email"`
	AdminPassword string  `json:"admin_password" validate:"required,min=8"`
	AdminFullName string  `json:"admin_full_name" validate:"required,max=255"`
}

// CreateOrganizationResponse is returned after an organization is created.
type CreateOrganizationResponse struct {
	Organization *domain.Organization `json:"organization"`
	Admin        *domain.User         `json:"admin"`
}

// UpdateOrganizationRequest represents the request body for updating an organization.
type UpdateOrganizationRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Subdomain   *string `json:"subdomain" validate:"omitempty,min=1,max=63"`
	Description *string `json:"description"`
}

// ToPatch converts the request to an organization patch.
func (r *UpdateOrganizationRequest) ToPatch() *OrganizationPatch {
	patch := &OrganizationPatch{}
	if r.Name != nil {
		patch.SetName(*r.Name)
	}
	if r.Subdomain != nil {
		patch.SetSubdomain(*r.Subdomain)
	}
	if r.Description != nil {
		patch.SetDescription(*r.Description)
	}
	return patch
}

// CreateTeamRequest represents the request body for creating a team.
type CreateTeamRequest struct {
	Name           string  `json:"name" validate:"required,max=255"`
	Description    *string `json:"description"`
	OrganizationID string  `json:"organization_id" validate:"required,uuid"`
}

// CreateOrganization handles POST /organizations.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	org, admin, err := h.service.CreateOrganization(r.Context(), CreateOrganizationInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, CreateOrganizationResponse{
		Organization: org,
		Admin:        admin,
	})
}

// ListOrganizations handles GET /organizations.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, DefaultOrganizationsLimit, MaxOrganizationsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	orgs, err := h.service.ListOrganizations(r.Context(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, orgs)
}

// GetOrganization handles GET /organizations/{organization_id}.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := organizationID(w, r)
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, org)
}

// GetOrganizationBySubdomain handles GET /organizations/by-subdomain/{subdomain}.
func (h *Handler) GetOrganizationBySubdomain(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.GetOrganizationBySubdomain(r.Context(), chi.URLParam(r, "subdomain"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, org)
}

// UpdateOrganization handles PATCH /organizations/{organization_id}.
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := organizationID(w, r)
	if !ok {
		return
	}

	var req UpdateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	org, err := h.service.UpdateOrganization(r.Context(), id, req.ToPatch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, org)
}

// DeleteOrganization handles DELETE /organizations/{organization_id}.
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := organizationID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrganization(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// CreateTeam handles POST /teams.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	team, err := h.service.CreateTeam(r.Context(), CreateTeamInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, team)
}

// ListTeams handles GET /organizations/{organization_id}/teams.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	id, ok := organizationID(w, r)
	if !ok {
		return
	}

	teams, err := h.service.ListTeams(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, teams)
}

// AddTeamMember handles POST /teams/{id}/members/{user_id}.
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := membershipIDs(w, r)
	if !ok {
		return
	}

	if err := h.service.AddTeamMember(r.Context(), teamID, userID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// RemoveTeamMember handles DELETE /teams/{id}/members/{user_id}.
func (h *Handler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := membershipIDs(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

func organizationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := httputil.ParseID(chi.URLParam(r, "organization_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid organization id")
		return "", false
	}
	return id, true
}

func membershipIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	teamID, err := httputil.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid team id")
		return "", "", false
	}
	userID, err := httputil.ParseID(chi.URLParam(r, "user_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return "", "", false
	}
	return teamID, userID, true
}
