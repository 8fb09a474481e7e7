package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avvvet/gate-services/internal/gatesvc/db"
)

// openTestDB returns a migrated in-memory SQLite database unique to the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.ReplaceAll(t.Name(), "/", "_"),
	)

	conn, err := db.OpenSQLiteDSN(context.Background(), dsn)
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}
