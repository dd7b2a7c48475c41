package app

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/statusboard/api/openapi"
	"github.com/bissquit/statusboard/internal/catalog"
	catalogpostgres "github.com/bissquit/statusboard/internal/catalog/postgres"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/identity/jwt"
	identitypostgres "github.com/bissquit/statusboard/internal/identity/postgres"
	"github.com/bissquit/statusboard/internal/incidents"
	incidentspostgres "github.com/bissquit/statusboard/internal/incidents/postgres"
	"github.com/bissquit/statusboard/internal/organizations"
	organizationspostgres "github.com/bissquit/statusboard/internal/organizations/postgres"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/bissquit/statusboard/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// modules holds the HTTP handlers of every feature package plus the
// authenticator protected routes are checked with.
type modules struct {
	auth          httputil.TokenValidator
	identity      *identity.Handler
	organizations *organizations.Handler
	catalog       *catalog.Handler
	incidents     *incidents.Handler
	realtime      *realtime.Handler
}

func (a *App) buildModules() modules {
	cfg := a.config

	// Every organization-scoped module checks existence against this repository.
	orgRepo := organizationspostgres.NewRepository(a.db)

	dispatcher := realtime.NewDispatcher(a.registry, realtime.DispatcherConfig{
		SendTimeout:        cfg.Realtime.SendTimeout,
		MaxConcurrentSends: cfg.Realtime.MaxConcurrentSends,
	})

	identityService := identity.NewService(
		identitypostgres.NewRepository(a.db),
		jwt.NewAuthenticator(jwt.Config{
			SecretKey:           cfg.JWT.SecretKey,
			AccessTokenDuration: cfg.JWT.AccessTokenDuration,
		}),
		orgRepo,
	)
	catalogService := catalog.NewService(catalogpostgres.NewRepository(a.db), orgRepo, dispatcher)
	incidentsService := incidents.NewService(incidentspostgres.NewRepository(a.db), catalogService, identityService, dispatcher)

	return modules{
		auth:          identityService,
		identity:      identity.NewHandler(identityService),
		organizations: organizations.NewHandler(organizations.NewService(orgRepo, identityService)),
		catalog:       catalog.NewHandler(catalogService),
		incidents:     incidents.NewHandler(incidentsService),
		realtime: realtime.NewHandler(a.registry, orgRepo, realtime.ConnConfig{
			PingInterval: cfg.Realtime.PingInterval,
			PongWait:     cfg.Realtime.PongWait,
			WriteWait:    cfg.Realtime.WriteWait,
			ReadLimit:    cfg.Realtime.ReadLimit,
			InboundRate:  cfg.Realtime.InboundRate,
			InboundBurst: cfg.Realtime.InboundBurst,
		}, cfg.CORS.AllowedOrigins),
	}
}

func (a *App) router() *chi.Mux {
	m := a.buildModules()
	r := chi.NewRouter()

	// Metrics first so latency covers the whole chain. CORS next so
	// preflight requests never reach auth.
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/version", a.versionInfo)
	r.Get("/api/openapi.yaml", serveOpenAPI)
	r.Get("/docs", serveDocs)

	r.Route("/api/v1", func(r chi.Router) {
		// Subscriber connections live far longer than any request timeout.
		m.realtime.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

			m.identity.RegisterRoutes(r)
			m.organizations.RegisterPublicRoutes(r)
			m.catalog.RegisterPublicRoutes(r)
			m.incidents.RegisterPublicRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(m.auth))

				m.identity.RegisterProtectedRoutes(r)
				m.organizations.RegisterProtectedRoutes(r)
				m.catalog.RegisterProtectedRoutes(r)
				m.incidents.RegisterProtectedRoutes(r)
			})
		})
	})

	return r
}

func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

type readiness struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Subscribers int    `json:"subscribers"`
}

func (a *App) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := readiness{Status: "ok", Database: "ok", Subscribers: a.registry.Total()}
	status := http.StatusOK

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		report.Status = "unavailable"
		report.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	httputil.JSON(w, status, report)
}

func (a *App) versionInfo(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Spec)
}

const docsPage = `<!DOCTYPE html>
<html>
<head>
  <title>Statusboard API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "/api/openapi.yaml", dom_id: "#swagger-ui"});
  </script>
</body>
</html>`

func serveDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}
