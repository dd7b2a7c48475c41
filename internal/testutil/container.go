package testutil

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImageEnv overrides the image used by NewPostgresContainer.
const PostgresImageEnv = "STATUSBOARD_TEST_POSTGRES_IMAGE"

const defaultPostgresImage = "postgres:16-alpine"

// PostgresContainer is a disposable PostgreSQL server.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer starts an empty statusboard database. The schema is
// left to the caller, which normally lets the app apply its migrations.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	image := cmp.Or(os.Getenv(PostgresImageEnv), defaultPostgresImage)

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("statusboard"),
		postgres.WithUsername("statusboard"),
		postgres.WithPassword("statusboard"),
		testcontainers.WithWaitStrategy(
			// The server logs readiness twice: once for the init pass and
			// once for the real start.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", image, err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}
