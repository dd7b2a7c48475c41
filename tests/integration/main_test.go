//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/app"
	"github.com/bissquit/statusboard/internal/config"
	"github.com/bissquit/statusboard/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testApp       *app.App
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
)

// newTestClient returns a client whose traffic is checked against the
// OpenAPI document.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation returns a client for concurrent use and
// for requests that are invalid on purpose.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	code, err := run(m)
	if err != nil {
		log.Print(err)
		code = 1
	}
	os.Exit(code)
}

func run(m *testing.M) (int, error) {
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := pg.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	cfg := testConfig(pg.ConnectionString)
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	// The app applies the embedded migrations itself.
	testApp, err = app.New(&cfg)
	if err != nil {
		return 0, fmt.Errorf("create app: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := testApp.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown app: %v", err)
		}
	}()

	testDB, err = pgxpool.New(ctx, pg.ConnectionString)
	if err != nil {
		return 0, fmt.Errorf("open test pool: %w", err)
	}
	defer testDB.Close()

	testValidator, err = testutil.LoadOpenAPIValidator()
	if err != nil {
		return 0, err
	}

	testServer = httptest.NewServer(testApp.Router())
	defer testServer.Close()

	return m.Run(), nil
}

func testConfig(databaseURL string) config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Database.URL = databaseURL
	cfg.Database.MaxOpenConns = 10
	cfg.Database.MaxIdleConns = 2
	cfg.Database.ConnectAttempts = 3
	cfg.Database.AutoMigrate = true
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.JWT.SecretKey = "test-secret-key"
	cfg.JWT.AccessTokenDuration = 15 * time.Minute
	cfg.CORS.AllowedOrigins = []string{config.DefaultAllowedOrigin}
	cfg.Realtime.SendTimeout = 2 * time.Second
	return cfg
}
