package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avvvet/gate-services/internal/comm"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
)

// Conn is the part of *nats.Conn the broker uses.
type Conn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

// Handler decides one decoded scan.
type Handler interface {
	Handle(ctx context.Context, env comm.Envelope) (service.Outcome, error)
}

// TransportError is a failed publish. The subscription keeps consuming.
type TransportError struct {
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Config struct {
	InboundTopic string
	QueueGroup   string
	EventsTopic  string // empty disables decision events
	Workers      int
	InstanceId   string
}

type Broker struct {
	Conn    Conn
	Handler Handler
	cfg     Config

	sub     *nats.Subscription
	workers *errgroup.Group

	// pending scans per card; a key is present while a worker drains it
	qmu    sync.Mutex
	queues map[string][]comm.Envelope

	mu     sync.RWMutex
	closed bool
}

func NewBroker(conn Conn, handler Handler, cfg Config) *Broker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(cfg.Workers)

	return &Broker{
		Conn:    conn,
		Handler: handler,
		cfg:     cfg,
		workers: g,
		queues:  make(map[string][]comm.Envelope),
	}
}

// Start subscribes to the inbound topic, as a queue member when a group is set.
func (b *Broker) Start() error {
	var (
		sub *nats.Subscription
		err error
	)
	if b.cfg.QueueGroup != "" {
		sub, err = b.Conn.QueueSubscribe(b.cfg.InboundTopic, b.cfg.QueueGroup, b.handleMessage)
	} else {
		sub, err = b.Conn.Subscribe(b.cfg.InboundTopic, b.handleMessage)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.InboundTopic, err)
	}

	b.sub = sub
	return nil
}

// handleMessage runs on the NATS delivery goroutine. Decoding happens here;
// the decision runs on the worker pool. Go blocks while the pool is full.
// Scans of one card run in arrival order on a single worker.
func (b *Broker) handleMessage(msg *nats.Msg) {
	env, err := comm.Decode(msg.Data)
	if err != nil {
		var decErr *comm.DecodeError
		if errors.As(err, &decErr) {
			log.WithField("topic", msg.Subject).Warnf("dropping malformed message: %s", decErr.Reason)
		}
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		log.WithField("card_id", env.CardID).Warn("broker stopped, dropping scan")
		return
	}

	if !b.enqueue(env) {
		return
	}
	b.workers.Go(func() error {
		b.drain(env.CardID)
		return nil
	})
}

// enqueue reports whether the card needs a new worker.
func (b *Broker) enqueue(env comm.Envelope) bool {
	b.qmu.Lock()
	defer b.qmu.Unlock()

	q, running := b.queues[env.CardID]
	b.queues[env.CardID] = append(q, env)
	return !running
}

func (b *Broker) drain(cardID string) {
	for {
		b.qmu.Lock()
		q := b.queues[cardID]
		if len(q) == 0 {
			delete(b.queues, cardID)
			b.qmu.Unlock()
			return
		}
		env := q[0]
		b.queues[cardID] = q[1:]
		b.qmu.Unlock()

		b.process(env)
	}
}

func (b *Broker) process(env comm.Envelope) {
	fields := log.Fields{
		"card_id":     env.CardID,
		"direction":   env.Direction.String(),
		"reply_topic": env.ReplyTopic,
	}

	out, err := b.Handler.Handle(context.Background(), env)
	if err != nil {
		log.WithFields(fields).Errorf("scan aborted, no reply sent: %v", err)
		return
	}

	if err := b.Publish(env.ReplyTopic, out.Reply.Bytes()); err != nil {
		log.WithFields(fields).Error(err)
		return
	}

	log.WithFields(fields).WithFields(log.Fields{
		"granted": out.Decision.Granted,
		"reason":  out.Decision.Reason,
	}).Info(out.Reply.String())

	b.publishEvent(env, out)
}

func (b *Broker) publishEvent(env comm.Envelope, out service.Outcome) {
	if b.cfg.EventsTopic == "" {
		return
	}

	ev := comm.GateEvent{
		CardID:     env.CardID,
		Direction:  env.Direction.String(),
		ReplyTopic: env.ReplyTopic,
		Granted:    out.Decision.Granted,
		Reason:     out.Decision.Reason,
		DecidedAt:  out.DecidedAt,
		InstanceId: b.cfg.InstanceId,
	}
	if out.Reply.HasDuration {
		ev.DurationSeconds = out.Reply.Seconds()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Error marshal gate event %s", err)
		return
	}

	if err := b.Publish(b.cfg.EventsTopic, payload); err != nil {
		log.Warn(err)
	}
}

// Heartbeat announces this instance on topic every interval until ctx ends.
func (b *Broker) Heartbeat(ctx context.Context, topic string, interval time.Duration) {
	if topic == "" || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.beat(topic)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broker) beat(topic string) {
	payload, err := json.Marshal(comm.ServiceHeartbeat{ID: b.cfg.InstanceId, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Errorf("Error marshal heartbeat %s", err)
		return
	}
	if err := b.Publish(topic, payload); err != nil {
		log.Debug(err)
	}
}

// Publish returns a *TransportError on failure.
func (b *Broker) Publish(topic string, payload []byte) error {
	if err := b.Conn.Publish(topic, payload); err != nil {
		return &TransportError{Topic: topic, Err: err}
	}
	return nil
}

// Shutdown drains the subscription, stops accepting messages and waits for
// in-flight scans to finish or ctx to end.
func (b *Broker) Shutdown(ctx context.Context) error {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			log.Warnf("drain %s: %v", b.cfg.InboundTopic, err)
		} else {
			waitDrained(ctx, b.sub)
		}
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitDrained(ctx context.Context, sub *nats.Subscription) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for sub.IsValid() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
