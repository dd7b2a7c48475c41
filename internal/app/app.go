// Package app wires the statusboard modules together and runs the HTTP
// listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bissquit/statusboard/internal/config"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/bissquit/statusboard/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const poolStatsInterval = 15 * time.Second

// App owns the database pool, the subscriber registry and both listeners.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	db       *pgxpool.Pool
	registry *realtime.Registry

	api         *http.Server
	metrics     *http.Server
	stopCollect context.CancelFunc
}

// New connects to the database, applies migrations when enabled and builds
// the HTTP servers. Nothing listens until Run is called.
func New(cfg *config.Config) (*App, error) {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, err
	}

	collectCtx, stopCollect := context.WithCancel(context.Background())
	go metrics.CollectPool(collectCtx, db, poolStatsInterval)

	a := &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		registry:    realtime.NewRegistry(),
		stopCollect: stopCollect,
	}

	a.api = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           a.router(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return a, nil
}

// Run serves the API and the metrics endpoint until Shutdown is called.
// If either listener fails the other is closed and the error returned.
func (a *App) Run() error {
	var g errgroup.Group

	g.Go(func() error {
		a.logger.Info("metrics listening", "addr", a.metrics.Addr)
		return serve(a.metrics, a.api, "metrics server")
	})
	g.Go(func() error {
		a.logger.Info("api listening", "addr", a.api.Addr)
		return serve(a.api, a.metrics, "api server")
	})

	return g.Wait()
}

func serve(srv, peer *http.Server, name string) error {
	err := srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	_ = peer.Close()
	return fmt.Errorf("%s: %w", name, err)
}

// Shutdown stops accepting requests, closes subscriber connections, waits
// for in-flight requests until ctx is done and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	a.stopCollect()

	// Hijacked websocket connections are invisible to http.Server.Shutdown.
	a.registry.CloseAll()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.api.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metrics.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	a.db.Close()
	return err
}

// Router returns the API handler. Tests serve it with httptest.
func (a *App) Router() http.Handler {
	return a.api.Handler
}

// Registry returns the live subscriber registry.
func (a *App) Registry() *realtime.Registry {
	return a.registry
}
