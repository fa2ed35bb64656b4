//go:build integration

package database

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// newTestPool starts a throwaway Postgres and returns a migrated pool
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "menu",
			"POSTGRES_PASSWORD": "menu",
			"POSTGRES_DB":       "menu",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPostgresPool(ctx, fmt.Sprintf("postgres://menu:menu@%s:%s/menu?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, NewMigrator(pool, nil).Run(ctx))
	return pool
}

// createOrderingSchema creates the tables the ordering subsystem owns in production
func createOrderingSchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		CREATE TABLE menu_items (
			id           BIGINT PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			name         TEXT NOT NULL,
			category     TEXT NOT NULL,
			price        NUMERIC(10,2) NOT NULL,
			image_url    TEXT,
			is_available BOOLEAN NOT NULL DEFAULT TRUE,
			dietary_tags TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE TABLE orders (
			id          BIGSERIAL PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			customer_id BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			rating      NUMERIC(2,1)
		);
		CREATE TABLE order_items (
			order_id     BIGINT NOT NULL REFERENCES orders(id),
			menu_item_id BIGINT NOT NULL REFERENCES menu_items(id),
			quantity     INT NOT NULL DEFAULT 1
		);
		CREATE TABLE customer_dietary_preferences (
			customer_id BIGINT NOT NULL,
			tenant_id   TEXT NOT NULL,
			tag         TEXT NOT NULL
		);
	`)
	require.NoError(t, err)
}

type seedItem struct {
	id        int
	tenant    string
	name      string
	category  string
	available bool
	tags      []string
}

func seedItems(t *testing.T, pool *pgxpool.Pool, items ...seedItem) {
	t.Helper()
	for _, it := range items {
		if it.tags == nil {
			it.tags = []string{}
		}
		_, err := pool.Exec(context.Background(),
			`INSERT INTO menu_items (id, tenant_id, name, category, price, is_available, dietary_tags)
			 VALUES ($1, $2, $3, $4, 9.50, $5, $6)`,
			it.id, it.tenant, it.name, it.category, it.available, it.tags)
		require.NoError(t, err)
	}
}

// seedOrder inserts one order containing itemIDs placed at the given time
func seedOrder(t *testing.T, pool *pgxpool.Pool, tenantID string, customerID int, at time.Time, rating float64, itemIDs ...int) {
	t.Helper()
	ctx := context.Background()

	var orderID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO orders (tenant_id, customer_id, created_at, rating) VALUES ($1, $2, $3, $4) RETURNING id`,
		tenantID, customerID, at, rating).Scan(&orderID)
	require.NoError(t, err)

	for _, itemID := range itemIDs {
		_, err := pool.Exec(ctx, `INSERT INTO order_items (order_id, menu_item_id) VALUES ($1, $2)`, orderID, itemID)
		require.NoError(t, err)
	}
}
