package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// OrganizationChecker reports whether an organization exists.
type OrganizationChecker interface {
	OrganizationExists(ctx context.Context, id string) (bool, error)
}

// Handler upgrades subscriber requests to websocket connections.
type Handler struct {
	registry *Registry
	orgs     OrganizationChecker
	config   ConnConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a subscriber handler. Browser upgrades are accepted
// from the same host or from allowedOrigins.
func NewHandler(registry *Registry, orgs OrganizationChecker, config ConnConfig, allowedOrigins []string) *Handler {
	allowed := httputil.OriginMatcher(allowedOrigins)
	return &Handler{
		registry: registry,
		orgs:     orgs,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
					return true
				}
				return allowed(origin)
			},
		},
	}
}

// RegisterRoutes registers the subscriber endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{organization_id}", h.Subscribe)
}

// Subscribe handles GET /ws/{organization_id}.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Broadcasts are keyed by the canonical form stored in the database.
	organizationID, err := httputil.ParseID(chi.URLParam(r, "organization_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	exists, err := h.orgs.OrganizationExists(ctx, organizationID)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to check organization", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !exists {
		httputil.Error(w, http.StatusNotFound, "organization not found")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		ctxlog.FromContext(ctx).Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := ctxlog.FromContext(ctx).With("organization_id", organizationID)
	conn := NewWSConn(ws, h.config, logger)

	h.registry.Register(conn, organizationID)
	defer func() {
		h.registry.Unregister(conn, organizationID)
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close subscriber", "conn_id", conn.ID(), "error", err)
		}
	}()

	logger.Info("subscriber connected", "conn_id", conn.ID())
	if err := conn.Serve(ctx); err != nil {
		logger.Info("subscriber disconnected", "conn_id", conn.ID(), "error", err)
		return
	}
	logger.Info("subscriber disconnected", "conn_id", conn.ID())
}
