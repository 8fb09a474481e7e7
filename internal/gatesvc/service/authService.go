package service

import (
	"context"

	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

type AuthService struct {
	cards store.Cards
}

func NewAuthService(cards store.Cards) *AuthService {
	return &AuthService{cards: cards}
}

// IsRegistered is an exact match on the card id.
func (s *AuthService) IsRegistered(ctx context.Context, cardID string) (bool, error) {
	ok, err := s.cards.IsRegistered(ctx, cardID)
	if err != nil {
		return false, store.Wrap("is registered", err)
	}
	return ok, nil
}
