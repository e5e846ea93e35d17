//go:build integration

// Package testutil provisions a migrated Postgres database for adapter integration tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mitoc/membership-api/internal/adapters/postgres"
	"github.com/mitoc/membership-api/internal/adapters/postgres/migrate"
)

var (
	once   sync.Once
	dsn    string
	setErr error
)

// OpenMigratedPool returns a pool connected to a migrated database.
//
// TEST_DATABASE_URL points the tests at an existing database; otherwise a postgres:16-alpine
// container is started once per test binary. Ryuk reaps the container.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	once.Do(func() {
		dsn, setErr = provision()
	})
	if setErr != nil {
		t.Fatalf("provision postgres: %v", setErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func provision() (string, error) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("membership_test"),
			tcpostgres.WithUsername("membership"),
			tcpostgres.WithPassword("membership"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			return "", err
		}
		url, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			return "", err
		}
	}
	if err := migrate.Run(url, migrate.Up); err != nil {
		return "", err
	}
	return url, nil
}
