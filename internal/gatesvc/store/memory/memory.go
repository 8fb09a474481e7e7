// Package memory is an in-process store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

// Store implements store.Cards and store.Sessions.
type Store struct {
	mu       sync.RWMutex
	cards    map[string]time.Time
	sessions []models.Session
}

func New() *Store {
	return &Store{cards: make(map[string]time.Time)}
}

func (s *Store) IsRegistered(_ context.Context, cardID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cards[cardID]
	return ok, nil
}

func (s *Store) RegisterCard(_ context.Context, cardID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[cardID]; ok {
		return fmt.Errorf("%w: %s", store.ErrCardExists, cardID)
	}
	s.cards[cardID] = store.NormalizeTime(at)
	return nil
}

func (s *Store) UnregisterCard(_ context.Context, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[cardID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrCardNotFound, cardID)
	}
	delete(s.cards, cardID)
	return nil
}

func (s *Store) ListCards(_ context.Context) ([]models.RegisteredCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RegisteredCard, 0, len(s.cards))
	for id, at := range s.cards {
		out = append(out, models.RegisteredCard{CardID: id, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CardID < out[j].CardID
	})
	return out, nil
}

func (s *Store) HasOpenSession(_ context.Context, cardID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openIndex(cardID) >= 0, nil
}

func (s *Store) OpenSession(_ context.Context, cardID string, enterTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openIndex(cardID) >= 0 {
		return store.ErrSessionAlreadyOpen
	}
	enter := store.NormalizeTime(enterTime)
	for _, sess := range s.sessions {
		if sess.CardID != cardID {
			continue
		}
		// no open session here, so ExitTime is set
		if sess.ExitTime.After(enter) {
			enter = *sess.ExitTime
		}
	}
	s.sessions = append(s.sessions, models.Session{
		ID:        uuid.NewString(),
		CardID:    cardID,
		EnterTime: enter,
	})
	return nil
}

func (s *Store) CloseOpenSession(_ context.Context, cardID string, exitTime time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.openIndex(cardID)
	if i < 0 {
		return false, nil
	}
	exit := store.NormalizeTime(exitTime)
	if exit.Before(s.sessions[i].EnterTime) {
		exit = s.sessions[i].EnterTime
	}
	s.sessions[i].ExitTime = &exit
	return true, nil
}

func (s *Store) MostRecentSession(_ context.Context, cardID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Session
	for i := range s.sessions {
		sess := &s.sessions[i]
		if sess.CardID != cardID {
			continue
		}
		if best == nil || newer(sess, best) {
			best = sess
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := copySession(*best)
	return &cp, nil
}

func (s *Store) ListSessions(_ context.Context) ([]models.Session, error) {
	return s.filter(func(models.Session) bool { return true }), nil
}

func (s *Store) SessionsForCard(_ context.Context, cardID string) ([]models.Session, error) {
	return s.filter(func(sess models.Session) bool { return sess.CardID == cardID }), nil
}

func (s *Store) SessionsBetween(_ context.Context, from, to time.Time) ([]models.Session, error) {
	return s.filter(func(sess models.Session) bool {
		return !sess.EnterTime.Before(from) && sess.EnterTime.Before(to)
	}), nil
}

func (s *Store) filter(keep func(models.Session) bool) []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Session
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, copySession(sess))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EnterTime.Equal(out[j].EnterTime) {
			return out[i].EnterTime.Before(out[j].EnterTime)
		}
		return out[i].CardID < out[j].CardID
	})
	return out
}

func (s *Store) openIndex(cardID string) int {
	for i := range s.sessions {
		if s.sessions[i].CardID == cardID && s.sessions[i].ExitTime == nil {
			return i
		}
	}
	return -1
}

// newer orders by enter time, then open before closed, then exit time.
func newer(a, b *models.Session) bool {
	if !a.EnterTime.Equal(b.EnterTime) {
		return a.EnterTime.After(b.EnterTime)
	}
	if a.IsOpen() != b.IsOpen() {
		return a.IsOpen()
	}
	if a.IsOpen() {
		return false
	}
	return a.ExitTime.After(*b.ExitTime)
}

func copySession(s models.Session) models.Session {
	if s.ExitTime != nil {
		t := *s.ExitTime
		s.ExitTime = &t
	}
	return s
}
