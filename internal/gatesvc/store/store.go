package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
)

// Business outcomes. These are never wrapped in a StoreError.
var (
	ErrSessionAlreadyOpen = errors.New("card already has an open session")
	ErrCardExists         = errors.New("card already registered")
	ErrCardNotFound       = errors.New("card not registered")
)

// StoreError is a persistence failure: connectivity, timeout or an
// unexpected constraint violation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap turns a driver error into a *StoreError. Nil, business sentinels and
// errors that already are a StoreError pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	for _, sentinel := range []error{ErrSessionAlreadyOpen, ErrCardExists, ErrCardNotFound} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &StoreError{Op: op, Err: err}
}

type Cards interface {
	IsRegistered(ctx context.Context, cardID string) (bool, error)
	RegisterCard(ctx context.Context, cardID string, at time.Time) error
	UnregisterCard(ctx context.Context, cardID string) error
	ListCards(ctx context.Context) ([]models.RegisteredCard, error)
}

type Sessions interface {
	HasOpenSession(ctx context.Context, cardID string) (bool, error)
	// OpenSession fails with ErrSessionAlreadyOpen if the card is inside.
	OpenSession(ctx context.Context, cardID string, enterTime time.Time) error
	// CloseOpenSession reports false when no session was open.
	CloseOpenSession(ctx context.Context, cardID string, exitTime time.Time) (bool, error)
	// MostRecentSession returns nil when the card has no history.
	MostRecentSession(ctx context.Context, cardID string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	SessionsForCard(ctx context.Context, cardID string) ([]models.Session, error)
	// SessionsBetween returns sessions whose enter_time is in [from, to).
	SessionsBetween(ctx context.Context, from, to time.Time) ([]models.Session, error)
}

type Audit interface {
	Record(ctx context.Context, ev models.AccessEvent) error
	Recent(ctx context.Context, cardID string, limit int) ([]models.AccessEvent, error)
}

// Backend bundles the stores of one engine with its cleanup.
type Backend struct {
	Cards    Cards
	Sessions Sessions
	Close    func()
}

// NormalizeTime is how every engine stores timestamps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
