package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/avvvet/gate-services/internal/gatesvc/db"
	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

// Store implements store.Cards and store.Sessions on SQLite. Reads use the
// connection directly, writes go through the single writer.
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) IsRegistered(ctx context.Context, cardID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registered_cards WHERE card_id = ?);`, cardID,
	).Scan(&ok)
	if err != nil {
		return false, store.Wrap("is registered", err)
	}
	return ok, nil
}

func (s *Store) RegisterCard(ctx context.Context, cardID string, at time.Time) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO registered_cards(card_id, created_at) VALUES (?, ?)
ON CONFLICT(card_id) DO NOTHING;`, cardID, store.NormalizeTime(at).Unix())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", store.ErrCardExists, cardID)
		}
		return nil
	})
	return store.Wrap("register card", err)
}

func (s *Store) UnregisterCard(ctx context.Context, cardID string) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM registered_cards WHERE card_id = ?;`, cardID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", store.ErrCardNotFound, cardID)
		}
		return nil
	})
	return store.Wrap("unregister card", err)
}

func (s *Store) ListCards(ctx context.Context) ([]models.RegisteredCard, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT card_id, created_at FROM registered_cards ORDER BY created_at, card_id;`)
	if err != nil {
		return nil, store.Wrap("list cards", err)
	}
	defer rows.Close()

	var cards []models.RegisteredCard
	for rows.Next() {
		var (
			c       models.RegisteredCard
			created int64
		)
		if err := rows.Scan(&c.CardID, &created); err != nil {
			return nil, store.Wrap("list cards", err)
		}
		c.CreatedAt = time.Unix(created, 0).UTC()
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list cards", err)
	}
	return cards, nil
}

func (s *Store) HasOpenSession(ctx context.Context, cardID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE card_id = ? AND exit_time IS NULL);`, cardID,
	).Scan(&ok)
	if err != nil {
		return false, store.Wrap("has open session", err)
	}
	return ok, nil
}

// OpenSession clamps the enter time to the card's latest recorded instant
// so the new open session sorts first in MostRecentSession.
func (s *Store) OpenSession(ctx context.Context, cardID string, enterTime time.Time) error {
	enter := store.NormalizeTime(enterTime).Unix()
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO sessions(id, card_id, enter_time)
SELECT ?, ?, MAX(?, COALESCE(
	(SELECT MAX(COALESCE(exit_time, enter_time)) FROM sessions WHERE card_id = ?), ?))
WHERE NOT EXISTS (SELECT 1 FROM sessions WHERE card_id = ? AND exit_time IS NULL);`,
			uuid.NewString(), cardID, enter, cardID, enter, cardID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrSessionAlreadyOpen
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrSessionAlreadyOpen
		}
		return nil
	})
	return store.Wrap("open session", err)
}

func (s *Store) CloseOpenSession(ctx context.Context, cardID string, exitTime time.Time) (bool, error) {
	var closed bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE sessions SET exit_time = MAX(?, enter_time)
WHERE card_id = ? AND exit_time IS NULL;`, store.NormalizeTime(exitTime).Unix(), cardID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		closed = n > 0
		return nil
	})
	if err != nil {
		return false, store.Wrap("close open session", err)
	}
	return closed, nil
}

func (s *Store) MostRecentSession(ctx context.Context, cardID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, card_id, enter_time, exit_time
FROM sessions
WHERE card_id = ?
ORDER BY enter_time DESC, (exit_time IS NULL) DESC, exit_time DESC
LIMIT 1;`, cardID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("most recent session", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	return s.query(ctx, "list sessions", `
SELECT id, card_id, enter_time, exit_time FROM sessions ORDER BY enter_time, card_id;`)
}

func (s *Store) SessionsForCard(ctx context.Context, cardID string) ([]models.Session, error) {
	return s.query(ctx, "sessions for card", `
SELECT id, card_id, enter_time, exit_time FROM sessions WHERE card_id = ? ORDER BY enter_time;`, cardID)
}

func (s *Store) SessionsBetween(ctx context.Context, from, to time.Time) ([]models.Session, error) {
	return s.query(ctx, "sessions between", `
SELECT id, card_id, enter_time, exit_time
FROM sessions
WHERE enter_time >= ? AND enter_time < ?
ORDER BY enter_time, card_id;`, from.UTC().Unix(), to.UTC().Unix())
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		sess  models.Session
		enter int64
		exit  sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.CardID, &enter, &exit); err != nil {
		return nil, err
	}
	sess.EnterTime = time.Unix(enter, 0).UTC()
	if exit.Valid {
		t := time.Unix(exit.Int64, 0).UTC()
		sess.ExitTime = &t
	}
	return &sess, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
