//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/coordination/memory"
	"github.com/getpup/pupsourcing-migrator/coordination/redis"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// getTestStore returns a Redis coordination store when REDIS_ADDR is set and
// an in-process store otherwise. Keys are prefixed per test.
func getTestStore(t *testing.T) coordination.Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Log("REDIS_ADDR not set, using in-process coordination store")
		return memory.New()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := redis.New(ctx, redis.Config{
		Addr:   addr,
		Prefix: fmt.Sprintf("it:%s:%d:", t.Name(), time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// uniqueTable returns a ledger table name unique to this test run.
func uniqueTable(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// dropTables drops the given tables. Errors are logged but don't fail the test.
func dropTables(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()

	for _, table := range tables {
		if err := ledger.ValidateIdentifier(table, "table"); err != nil {
			t.Fatalf("invalid table name: %v", err)
		}
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			t.Logf("warning: failed to drop table %s: %v", table, err)
		}
	}
}

// tableExists reports whether table exists in the current schema.
func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", table, err)
	}
	return exists
}
