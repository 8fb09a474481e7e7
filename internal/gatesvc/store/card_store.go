package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
)

const pgUniqueViolation = "23505"

type CardStore struct {
	db *pgxpool.Pool
}

func NewCardStore(db *pgxpool.Pool) *CardStore {
	return &CardStore{db: db}
}

func (s *CardStore) IsRegistered(ctx context.Context, cardID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registered_cards WHERE card_id = $1)`, cardID,
	).Scan(&ok)
	if err != nil {
		return false, Wrap("is registered", err)
	}
	return ok, nil
}

func (s *CardStore) RegisterCard(ctx context.Context, cardID string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO registered_cards (card_id, created_at) VALUES ($1, $2)`,
		cardID, NormalizeTime(at),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrCardExists, cardID)
		}
		return Wrap("register card", err)
	}
	return nil
}

func (s *CardStore) UnregisterCard(ctx context.Context, cardID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM registered_cards WHERE card_id = $1`, cardID)
	if err != nil {
		return Wrap("unregister card", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return nil
}

func (s *CardStore) ListCards(ctx context.Context) ([]models.RegisteredCard, error) {
	rows, err := s.db.Query(ctx, `
		SELECT card_id, created_at
		FROM registered_cards
		ORDER BY created_at, card_id
	`)
	if err != nil {
		return nil, Wrap("list cards", err)
	}
	defer rows.Close()

	var cards []models.RegisteredCard
	for rows.Next() {
		var c models.RegisteredCard
		if err := rows.Scan(&c.CardID, &c.CreatedAt); err != nil {
			return nil, Wrap("list cards", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("list cards", err)
	}

	return cards, nil
}
