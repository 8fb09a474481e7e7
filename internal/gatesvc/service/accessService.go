package service

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/comm"
	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultAuditTimeout = 2 * time.Second
)

// Outcome is the result of one handled scan.
type Outcome struct {
	Reply     comm.Reply
	Decision  Decision
	DecidedAt time.Time
}

// AccessService runs the gate state machine against the store. Every call
// re-reads the store; the only in-process state is the per-card lock.
type AccessService struct {
	auth         *AuthService
	presence     *PresenceService
	sessions     store.Sessions
	audit        store.Audit
	auditTimeout time.Duration
	audits       sync.WaitGroup
	timeout      time.Duration
	now          func() time.Time
	locks        *cardLocks
	instanceId   string
}

type AccessOption func(*AccessService)

func WithClock(now func() time.Time) AccessOption {
	return func(s *AccessService) { s.now = now }
}

// WithAudit records every decision in the background. Audit failures are
// logged, never returned, and never delay a reply.
func WithAudit(a store.Audit) AccessOption {
	return func(s *AccessService) { s.audit = a }
}

func WithAuditTimeout(d time.Duration) AccessOption {
	return func(s *AccessService) {
		if d > 0 {
			s.auditTimeout = d
		}
	}
}

func WithStoreTimeout(d time.Duration) AccessOption {
	return func(s *AccessService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithInstanceId(id string) AccessOption {
	return func(s *AccessService) { s.instanceId = id }
}

func NewAccessService(cards store.Cards, sessions store.Sessions, opts ...AccessOption) *AccessService {
	s := &AccessService{
		auth:     NewAuthService(cards),
		presence: NewPresenceService(sessions),
		sessions:     sessions,
		auditTimeout: DefaultAuditTimeout,
		timeout:      DefaultStoreTimeout,
		now:          time.Now,
		locks:        newCardLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle decides one scan. A non-nil error is always a *store.StoreError and
// means no reply must be sent. The audit entry is written after Handle
// returns; WaitAudits blocks until pending entries are done.
func (s *AccessService) Handle(ctx context.Context, env comm.Envelope) (Outcome, error) {
	out, err := s.decide(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	s.record(env, out)
	return out, nil
}

// WaitAudits blocks until every background audit write has finished.
func (s *AccessService) WaitAudits() {
	s.audits.Wait()
}

func (s *AccessService) decide(ctx context.Context, env comm.Envelope) (Outcome, error) {
	unlock := s.locks.Lock(env.CardID)
	defer unlock()

	now := store.NormalizeTime(s.now())

	authorized := false
	if env.Direction == comm.Enter {
		ok, err := s.isRegistered(ctx, env.CardID)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			// presence is not read for unknown cards
			return s.finish(Decide(env.Direction, false, false), 0, now), nil
		}
		authorized = true
	}

	inside, err := s.isInside(ctx, env.CardID)
	if err != nil {
		return Outcome{}, err
	}

	d := Decide(env.Direction, authorized, inside)

	var duration time.Duration
	switch d.Action {
	case ActionOpenSession:
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.sessions.OpenSession(ctx, env.CardID, now)
		})
		switch {
		case errors.Is(err, store.ErrSessionAlreadyOpen):
			// another gateway won the race
			d = Decision{Action: ActionNone, Reason: ReasonAlreadyInside}
		case err != nil:
			return Outcome{}, store.Wrap("open session", err)
		}

	case ActionCloseSession:
		var closed bool
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			closed, err = s.sessions.CloseOpenSession(ctx, env.CardID, now)
			return err
		})
		if err != nil {
			return Outcome{}, store.Wrap("close open session", err)
		}
		if !closed {
			d = Decision{Action: ActionNone, Reason: ReasonNotInside}
			break
		}

		err = s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			duration, err = s.presence.LastCompletedDuration(ctx, env.CardID)
			return err
		})
		if err != nil {
			return Outcome{}, store.Wrap("last completed duration", err)
		}
	}

	return s.finish(d, duration, now), nil
}

// IsInside is the presence query exposed to the admin API.
func (s *AccessService) IsInside(ctx context.Context, cardID string) (bool, error) {
	return s.isInside(ctx, cardID)
}

func (s *AccessService) isRegistered(ctx context.Context, cardID string) (bool, error) {
	var ok bool
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.auth.IsRegistered(ctx, cardID)
		return err
	})
	return ok, store.Wrap("is registered", err)
}

func (s *AccessService) isInside(ctx context.Context, cardID string) (bool, error) {
	var inside bool
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		inside, err = s.presence.IsInside(ctx, cardID)
		return err
	})
	return inside, store.Wrap("most recent session", err)
}

func (s *AccessService) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *AccessService) finish(d Decision, duration time.Duration, now time.Time) Outcome {
	reply := comm.Denied()
	switch {
	case d.Granted && d.Action == ActionCloseSession:
		reply = comm.GrantedExit(duration)
	case d.Granted:
		reply = comm.Granted()
	}

	return Outcome{Reply: reply, Decision: d, DecidedAt: now}
}

// record runs detached from the caller's context and the card lock, bounded
// by its own timeout.
func (s *AccessService) record(env comm.Envelope, out Outcome) {
	if s.audit == nil {
		return
	}

	ev := models.AccessEvent{
		CardID:     env.CardID,
		Direction:  env.Direction.String(),
		ReplyTopic: env.ReplyTopic,
		Granted:    out.Decision.Granted,
		Reason:     out.Decision.Reason,
		DecidedAt:  out.DecidedAt,
		InstanceId: s.instanceId,
	}
	if out.Reply.HasDuration {
		ev.DurationSeconds = out.Reply.Seconds()
	}

	s.audits.Add(1)
	go func() {
		defer s.audits.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.auditTimeout)
		defer cancel()
		if err := s.audit.Record(ctx, ev); err != nil {
			log.WithFields(log.Fields{
				"card_id": env.CardID,
				"reason":  out.Decision.Reason,
			}).Warnf("audit record failed: %v", err)
		}
	}()
}
