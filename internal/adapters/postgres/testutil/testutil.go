// Package testutil provides a migrated Postgres pool for adapter tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/dma-portal/association-api/internal/adapters/postgres"
)

var migrateOnce sync.Once
var migrateErr error

// OpenMigratedPool connects to TEST_DATABASE_URL, applies migrations once per process,
// and empties every table. The test is skipped when the variable is unset.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres adapter test")
	}

	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(dsn, nil)
	})
	if migrateErr != nil {
		t.Fatalf("Migrate err=%v", migrateErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 8})
	if err != nil {
		t.Fatalf("NewPool err=%v", err)
	}
	t.Cleanup(pool.Close)

	Truncate(t, pool)
	return pool
}

// Truncate empties every application table.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE members, candidates, admin_logs, site_settings, idempotency_keys
	`)
	if err != nil {
		t.Fatalf("truncate err=%v", err)
	}
}
