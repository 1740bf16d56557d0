package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pdsno.io/controller/internal/infrastructure"
)

// OpenContainerPool starts a disposable PostgreSQL container, applies the
// NIB schema migrations to it, and returns a connected pool. Unlike
// OpenPGXPool it needs no TEST_DATABASE_URL/DATABASE_URL and needs no
// external database to already be running — only a Docker daemon.
//
// It is skipped in short mode since starting a container is too slow for a
// fast feedback loop.
func OpenContainerPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed postgres test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(prefix),
		postgres.WithUsername(prefix),
		postgres.WithPassword(prefix),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping container postgres: %v", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate(ctx, db, pool); err != nil {
		t.Fatalf("migrate container postgres: %v", err)
	}

	return pool
}

func migrate(ctx context.Context, db *sql.DB, pool *pgxpool.Pool) error {
	clients := &infrastructure.DatabaseClients{Pool: pool, DB: db}
	if err := clients.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
