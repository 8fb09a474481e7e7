package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store/memory"
)

var errBoom = errors.New("connection reset")

// spyStore counts store calls and can fail or block selected operations.
type spyStore struct {
	*memory.Store

	isRegistered atomic.Int32
	mostRecent   atomic.Int32
	opens        atomic.Int32
	closes       atomic.Int32

	mu     sync.Mutex
	fail   map[string]bool
	block  map[string]bool
	before func(op string)
}

func newSpyStore() *spyStore {
	return &spyStore{
		Store: memory.New(),
		fail:  map[string]bool{},
		block: map[string]bool{},
	}
}

func (s *spyStore) failOn(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = true
}

func (s *spyStore) blockOn(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block[op] = true
}

func (s *spyStore) check(ctx context.Context, op string) error {
	s.mu.Lock()
	fail, block, before := s.fail[op], s.block[op], s.before
	s.mu.Unlock()

	if before != nil {
		before(op)
	}
	if fail {
		return errBoom
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *spyStore) total() int32 {
	return s.isRegistered.Load() + s.mostRecent.Load() + s.opens.Load() + s.closes.Load()
}

func (s *spyStore) IsRegistered(ctx context.Context, cardID string) (bool, error) {
	s.isRegistered.Add(1)
	if err := s.check(ctx, "is_registered"); err != nil {
		return false, err
	}
	return s.Store.IsRegistered(ctx, cardID)
}

func (s *spyStore) MostRecentSession(ctx context.Context, cardID string) (*models.Session, error) {
	s.mostRecent.Add(1)
	if err := s.check(ctx, "most_recent"); err != nil {
		return nil, err
	}
	return s.Store.MostRecentSession(ctx, cardID)
}

func (s *spyStore) OpenSession(ctx context.Context, cardID string, enterTime time.Time) error {
	s.opens.Add(1)
	if err := s.check(ctx, "open"); err != nil {
		return err
	}
	return s.Store.OpenSession(ctx, cardID, enterTime)
}

func (s *spyStore) CloseOpenSession(ctx context.Context, cardID string, exitTime time.Time) (bool, error) {
	s.closes.Add(1)
	if err := s.check(ctx, "close"); err != nil {
		return false, err
	}
	return s.Store.CloseOpenSession(ctx, cardID, exitTime)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// hangingAudit blocks every write until its context ends.
type hangingAudit struct {
	calls atomic.Int32
}

func (a *hangingAudit) Record(ctx context.Context, _ models.AccessEvent) error {
	a.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (a *hangingAudit) Recent(context.Context, string, int) ([]models.AccessEvent, error) {
	return nil, nil
}
