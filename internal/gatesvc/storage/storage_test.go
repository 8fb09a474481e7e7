package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/avvvet/gate-services/configs"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "gate.db")

	b, err := Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)

	require.NoError(t, b.Cards.RegisterCard(ctx, "[1, 2, 3, 4, 5]", time.Now()))
	ok, err := b.Cards.IsRegistered(ctx, "[1, 2, 3, 4, 5]")
	require.NoError(t, err)
	assert.True(t, ok)
	b.Close()

	// reopening keeps the data and skips applied migrations
	b, err = Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer b.Close()

	cards, err := b.Cards.ListCards(ctx)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "redis"})
	assert.ErrorContains(t, err, "unknown store driver")
}
