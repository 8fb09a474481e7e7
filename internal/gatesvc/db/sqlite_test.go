package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:dbtest_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	db, err := OpenSQLiteDSN(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateSQLite_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"registered_cards", "sessions", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrateSQLite_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateSQLite(context.Background(), db))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteSchema_OneOpenSessionPerCard(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec("INSERT INTO sessions(id, card_id, enter_time) VALUES('a', 'c1', 100)")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO sessions(id, card_id, enter_time) VALUES('b', 'c1', 200)")
	require.Error(t, err)

	// a closed session does not count
	_, err = db.Exec("UPDATE sessions SET exit_time = 150 WHERE id = 'a'")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sessions(id, card_id, enter_time) VALUES('b', 'c1', 200)")
	require.NoError(t, err)
}

func TestWorker_CommitAndRollback(t *testing.T) {
	db := openTestDB(t)
	w := NewWorker(db)
	defer w.Close()

	ctx := context.Background()

	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO registered_cards(card_id, created_at) VALUES('ok', 1)")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO registered_cards(card_id, created_at) VALUES('rolled', 1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM registered_cards").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWorker_CanceledContext(t *testing.T) {
	db := openTestDB(t)
	w := NewWorker(db)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = parseVersion("init.sql")
	assert.Error(t, err)
}
