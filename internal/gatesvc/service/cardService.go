package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

var ErrInvalidCardID = errors.New("invalid card id, expected format: [N, N, N, N, N]")

// five 1-3 digit numbers, e.g. "[12, 0, 255, 7, 3]"
var cardIDPattern = regexp.MustCompile(`^\[\d{1,3}, \d{1,3}, \d{1,3}, \d{1,3}, \d{1,3}\]$`)

func ValidCardID(id string) bool {
	return cardIDPattern.MatchString(id)
}

type CardService struct {
	cards    store.Cards
	sessions store.Sessions
	now      func() time.Time
}

func NewCardService(cards store.Cards, sessions store.Sessions) *CardService {
	return &CardService{cards: cards, sessions: sessions, now: time.Now}
}

func (s *CardService) Register(ctx context.Context, cardID string) (*models.RegisteredCard, error) {
	if !ValidCardID(cardID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCardID, cardID)
	}

	at := store.NormalizeTime(s.now())
	if err := s.cards.RegisterCard(ctx, cardID, at); err != nil {
		return nil, err
	}
	return &models.RegisteredCard{CardID: cardID, CreatedAt: at}, nil
}

// Unregister removes the card. Its session history is kept.
func (s *CardService) Unregister(ctx context.Context, cardID string) error {
	return s.cards.UnregisterCard(ctx, cardID)
}

func (s *CardService) List(ctx context.Context) ([]models.RegisteredCard, error) {
	return s.cards.ListCards(ctx)
}

func (s *CardService) Sessions(ctx context.Context) ([]models.Session, error) {
	return s.sessions.ListSessions(ctx)
}

func (s *CardService) History(ctx context.Context, cardID string) ([]models.Session, error) {
	return s.sessions.SessionsForCard(ctx, cardID)
}
