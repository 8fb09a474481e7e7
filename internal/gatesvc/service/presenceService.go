package service

import (
	"context"
	"time"

	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

// PresenceService derives inside/outside from the session log. Nothing is
// cached between calls.
type PresenceService struct {
	sessions store.Sessions
}

func NewPresenceService(sessions store.Sessions) *PresenceService {
	return &PresenceService{sessions: sessions}
}

// IsInside reports whether the card's most recent session is still open.
// A card with no history is outside.
func (s *PresenceService) IsInside(ctx context.Context, cardID string) (bool, error) {
	last, err := s.sessions.MostRecentSession(ctx, cardID)
	if err != nil {
		return false, store.Wrap("most recent session", err)
	}
	return last != nil && last.IsOpen(), nil
}

// LastCompletedDuration is exit minus enter of the most recent session.
// It is zero when that session is still open or there is none.
func (s *PresenceService) LastCompletedDuration(ctx context.Context, cardID string) (time.Duration, error) {
	last, err := s.sessions.MostRecentSession(ctx, cardID)
	if err != nil {
		return 0, store.Wrap("most recent session", err)
	}
	if last == nil {
		return 0, nil
	}
	return last.Duration(), nil
}
