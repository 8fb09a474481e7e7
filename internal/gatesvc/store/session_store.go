package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
)

const sessionColumns = `id::text, card_id, enter_time, exit_time`

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) HasOpenSession(ctx context.Context, cardID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE card_id = $1 AND exit_time IS NULL)`, cardID,
	).Scan(&ok)
	if err != nil {
		return false, Wrap("has open session", err)
	}
	return ok, nil
}

// OpenSession inserts only if the card has no open session. The partial
// unique index sessions_one_open_per_card is the arbiter. The stored enter
// time never precedes the card's latest recorded instant, so the new open
// session is always its most recent one.
func (s *SessionStore) OpenSession(ctx context.Context, cardID string, enterTime time.Time) error {
	const query = `
INSERT INTO sessions (id, card_id, enter_time)
SELECT $1::uuid, $2::text, GREATEST($3::timestamptz, COALESCE(
	(SELECT MAX(COALESCE(exit_time, enter_time)) FROM sessions WHERE card_id = $2::text),
	$3::timestamptz))
ON CONFLICT (card_id) WHERE exit_time IS NULL DO NOTHING
`
	tag, err := s.db.Exec(ctx, query, uuid.NewString(), cardID, NormalizeTime(enterTime))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrSessionAlreadyOpen
		}
		return Wrap("open session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionAlreadyOpen
	}
	return nil
}

func (s *SessionStore) CloseOpenSession(ctx context.Context, cardID string, exitTime time.Time) (bool, error) {
	// exit never precedes enter, even if the clock stepped back
	tag, err := s.db.Exec(ctx, `
UPDATE sessions
SET exit_time = GREATEST($2, enter_time)
WHERE card_id = $1 AND exit_time IS NULL
`, cardID, NormalizeTime(exitTime))
	if err != nil {
		return false, Wrap("close open session", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SessionStore) MostRecentSession(ctx context.Context, cardID string) (*models.Session, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM sessions
WHERE card_id = $1
ORDER BY enter_time DESC, (exit_time IS NULL) DESC, exit_time DESC
LIMIT 1
`, cardID)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, Wrap("most recent session", err)
	}
	return sess, nil
}

func (s *SessionStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	return s.query(ctx, "list sessions", `
SELECT `+sessionColumns+` FROM sessions ORDER BY enter_time, card_id`)
}

func (s *SessionStore) SessionsForCard(ctx context.Context, cardID string) ([]models.Session, error) {
	return s.query(ctx, "sessions for card", `
SELECT `+sessionColumns+` FROM sessions WHERE card_id = $1 ORDER BY enter_time`, cardID)
}

func (s *SessionStore) SessionsBetween(ctx context.Context, from, to time.Time) ([]models.Session, error) {
	return s.query(ctx, "sessions between", `
SELECT `+sessionColumns+`
FROM sessions
WHERE enter_time >= $1 AND enter_time < $2
ORDER BY enter_time, card_id`, from.UTC(), to.UTC())
}

func (s *SessionStore) query(ctx context.Context, op, sql string, args ...any) ([]models.Session, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, Wrap(op, err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, Wrap(op, err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(op, err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		sess models.Session
		exit *time.Time
	)
	if err := row.Scan(&sess.ID, &sess.CardID, &sess.EnterTime, &exit); err != nil {
		return nil, err
	}
	sess.EnterTime = sess.EnterTime.UTC()
	if exit != nil {
		t := exit.UTC()
		sess.ExitTime = &t
	}
	return &sess, nil
}
