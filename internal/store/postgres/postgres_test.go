package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/vmpilot/internal/store"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() { _ = c.Terminate(ctx) }()

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if err := db.Put(ctx, store.Record{Name: "vm1", Data: []byte(`{"zoom": 150}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get(ctx, "vm1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// jsonb normalizes whitespace
	if string(got.Data) != `{"zoom": 150}` {
		t.Fatalf("unexpected data %s", got.Data)
	}
	if err := db.Delete(ctx, "vm1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(ctx, "vm1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_EmptyDSN(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
