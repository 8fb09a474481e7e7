// Package storage opens the configured relational backend.
package storage

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gate-services/configs"
	"github.com/avvvet/gate-services/internal/gatesvc/db"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
	sqlitestore "github.com/avvvet/gate-services/internal/gatesvc/store/sqlite"
)

// Open connects to the store named by cfg.Driver and runs its migrations.
// The caller owns the returned Backend and must call Close.
func Open(ctx context.Context, cfg config.StoreConfig) (*store.Backend, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres store")
		return &store.Backend{
			Cards:    store.NewCardStore(pool),
			Sessions: store.NewSessionStore(pool),
			Close:    pool.Close,
		}, nil

	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		w := db.NewWorker(conn)
		st := sqlitestore.New(conn, w)
		log.WithField("path", cfg.SQLitePath).Info("using sqlite store")
		return &store.Backend{
			Cards:    st,
			Sessions: st,
			Close: func() {
				w.Close()
				if err := conn.Close(); err != nil {
					log.Errorf("close sqlite: %v", err)
				}
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
