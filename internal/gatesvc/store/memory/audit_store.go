package memory

import (
	"context"
	"sync"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
)

// AuditStore keeps the newest decisions in memory. A limit of zero keeps
// everything.
type AuditStore struct {
	mu     sync.Mutex
	limit  int
	events []models.AccessEvent
}

func NewAuditStore(limit int) *AuditStore {
	return &AuditStore{limit: limit}
}

func (s *AuditStore) Record(_ context.Context, ev models.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append([]models.AccessEvent(nil), s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

func (s *AuditStore) Recent(_ context.Context, cardID string, limit int) ([]models.AccessEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AccessEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if cardID != "" && s.events[i].CardID != cardID {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of everything recorded, oldest first.
func (s *AuditStore) Events() []models.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}
