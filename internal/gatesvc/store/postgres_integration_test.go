//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avvvet/gate-services/internal/gatesvc/db"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
	"github.com/avvvet/gate-services/internal/gatesvc/store/storetest"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "gate",
			"POSTGRES_PASSWORD": "gate",
			"POSTGRES_DB":       "gate",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://gate:gate@%s:%s/gate?sslmode=disable", host, port.Port())
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresStores(t *testing.T) {
	pool := startPostgres(t)

	storetest.Run(t, func(t *testing.T) (store.Cards, store.Sessions) {
		_, err := pool.Exec(context.Background(), `TRUNCATE registered_cards, sessions`)
		require.NoError(t, err)
		return store.NewCardStore(pool), store.NewSessionStore(pool)
	})
}

func TestPostgresMigrateTwice(t *testing.T) {
	pool := startPostgres(t)
	require.NoError(t, db.MigratePostgres(context.Background(), pool))
}
