// Package identity provides users, credential checks and access tokens.
package identity

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultUsersLimit = 100
	MaxUsersLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrOrganizationNotFound, Status: http.StatusNotFound},
	{Error: ErrEmailExists, Status: http.StatusConflict},
	{Error: ErrUserInUse, Status: http.StatusConflict},
	{Error: ErrInvalidEmail, Status: http.StatusBadRequest},
	{Error: ErrUserInactive, Status: http.StatusBadRequest},
	{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
	{Error: ErrInvalidToken, Status: http.StatusUnauthorized},
}

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers public identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
		r.Get("/email/{email}", h.GetUserByEmail)
		r.Get("/{id}", h.GetUser)
		r.Patch("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
	})
	r.Get("/organizations/{organization_id}/users", h.ListOrganizationUsers)
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents login response.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

// CreateUserRequest represents the request body for creating a user.
type CreateUserRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	FullName       string `json:"full_name" validate:"max=255"`
	OrganizationID string `json:"organization_id" validate:"required,uuid"`
	IsActive       *bool  `json:"is_active"`
	IsSuperuser    bool   `json:"is_superuser"`
}

// UpdateUserRequest represents the request body for updating a user.
type UpdateUserRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	Password    *string `json:"password" validate:"omitempty,min=8"`
	FullName    *string `json:"full_name" validate:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// ToPatch converts the request to a user patch.
func (r *UpdateUserRequest) ToPatch() *UserPatch {
	patch := &UserPatch{}
	if r.Email != nil {
		patch.SetEmail(*r.Email)
	}
	if r.Password != nil {
		patch.SetPassword(*r.Password)
	}
	if r.FullName != nil {
		patch.SetFullName(*r.FullName)
	}
	if r.IsActive != nil {
		patch.SetActive(*r.IsActive)
	}
	if r.IsSuperuser != nil {
		patch.SetSuperuser(*r.IsSuperuser)
	}
	return patch
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, token, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), CreateUserInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, DefaultUsersLimit, MaxUsersLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := UserFilter{Offset: page.Offset, Limit: page.Limit}
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		orgID, err := httputil.ParseID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		filter.OrganizationID = &orgID
	}

	h.listUsers(w, r, filter)
}

// ListOrganizationUsers handles GET /organizations/{organization_id}/users.
func (h *Handler) ListOrganizationUsers(w http.ResponseWriter, r *http.Request) {
	orgID, err := httputil.ParseID(chi.URLParam(r, "organization_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	page, err := httputil.ParsePage(r, DefaultUsersLimit, MaxUsersLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.listUsers(w, r, UserFilter{OrganizationID: &orgID, Offset: page.Offset, Limit: page.Limit})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, filter UserFilter) {
	users, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, users)
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// GetUserByEmail handles GET /users/email/{email}.
func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// UpdateUser handles PATCH /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, req.ToPatch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := httputil.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	return id, true
}
