package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/gate-services/internal/comm"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
	"github.com/avvvet/gate-services/internal/gatesvc/store/memory"
)

type published struct {
	topic   string
	payload string
}

type fakeConn struct {
	mu        sync.Mutex
	msgs      []published
	failTopic string
	subject   string
	queue     string
}

func (c *fakeConn) Subscribe(subj string, _ nats.MsgHandler) (*nats.Subscription, error) {
	c.subject = subj
	return nil, nil
}

func (c *fakeConn) QueueSubscribe(subj, queue string, _ nats.MsgHandler) (*nats.Subscription, error) {
	c.subject, c.queue = subj, queue
	return nil, nil
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subj == c.failTopic {
		return errors.New("connection closed")
	}
	c.msgs = append(c.msgs, published{topic: subj, payload: string(data)})
	return nil
}

func (c *fakeConn) on(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

// countingHandler wraps a real handler and counts calls.
type countingHandler struct {
	next  Handler
	calls atomic.Int32
}

func (h *countingHandler) Handle(ctx context.Context, env comm.Envelope) (service.Outcome, error) {
	h.calls.Add(1)
	return h.next.Handle(ctx, env)
}

const card = "[1, 2, 3, 4, 5]"

func newTestBroker(t *testing.T, clock *time.Time) (*Broker, *fakeConn, *countingHandler, *memory.Store) {
	t.Helper()

	st := memory.New()
	require.NoError(t, st.RegisterCard(context.Background(), card, time.Now()))

	access := service.NewAccessService(st, st, service.WithClock(func() time.Time { return *clock }))
	h := &countingHandler{next: access}
	conn := &fakeConn{}
	b := NewBroker(conn, h, Config{
		InboundTopic: "server",
		EventsTopic:  "gate.events",
		Workers:      4,
		InstanceId:   "gw-1",
	})
	return b, conn, h, st
}

// deliver pushes one message through the broker and waits for it to finish.
func deliver(t *testing.T, b *Broker, payload string) {
	t.Helper()
	b.handleMessage(&nats.Msg{Subject: "server", Data: []byte(payload)})
	require.NoError(t, b.workers.Wait())
}

func TestBroker_EnterExitRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	b, conn, _, _ := newTestBroker(t, &now)

	deliver(t, b, "reply1&enter&"+card)
	deliver(t, b, "reply1&enter&"+card)
	now = now.Add(125 * time.Second)
	deliver(t, b, "reply1&exit&"+card)

	assert.Equal(t, []string{"pass", "no_pass", "pass&125"}, conn.on("reply1"))

	events := conn.on("gate.events")
	require.Len(t, events, 3)

	var ev comm.GateEvent
	require.NoError(t, json.Unmarshal([]byte(events[2]), &ev))
	assert.Equal(t, card, ev.CardID)
	assert.Equal(t, "exit", ev.Direction)
	assert.True(t, ev.Granted)
	assert.Equal(t, int64(125), ev.DurationSeconds)
	assert.Equal(t, "gw-1", ev.InstanceId)
}

func TestBroker_UnregisteredCard(t *testing.T) {
	now := time.Now()
	b, conn, _, st := newTestBroker(t, &now)

	deliver(t, b, "reply9&enter&[9, 9, 9, 9, 9]")

	assert.Equal(t, []string{"no_pass"}, conn.on("reply9"))
	all, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBroker_MalformedPayloadIsDropped(t *testing.T) {
	now := time.Now()
	b, conn, h, _ := newTestBroker(t, &now)

	for _, p := range []string{"onlytwo&fields", "a&b&c&d", "r&sideways&card", ""} {
		deliver(t, b, p)
	}

	assert.Empty(t, conn.msgs)
	assert.Equal(t, int32(0), h.calls.Load())
}

type failingHandler struct{}

func (failingHandler) Handle(context.Context, comm.Envelope) (service.Outcome, error) {
	return service.Outcome{}, &store.StoreError{Op: "is registered", Err: context.DeadlineExceeded}
}

func TestBroker_HandlerErrorSendsNoReply(t *testing.T) {
	conn := &fakeConn{}
	b := NewBroker(conn, failingHandler{}, Config{InboundTopic: "server", EventsTopic: "gate.events"})

	deliver(t, b, "reply1&enter&"+card)

	assert.Empty(t, conn.msgs)
}

func TestBroker_PublishFailureKeepsConsuming(t *testing.T) {
	now := time.Now()
	b, conn, _, _ := newTestBroker(t, &now)
	conn.failTopic = "broken"

	deliver(t, b, "broken&enter&"+card)
	deliver(t, b, "reply2&exit&"+card)

	assert.Equal(t, []string{"pass&0"}, conn.on("reply2"))
}

func TestBroker_PublishReturnsTransportError(t *testing.T) {
	conn := &fakeConn{failTopic: "x"}
	b := NewBroker(conn, failingHandler{}, Config{})

	err := b.Publish("x", []byte("pass"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "x", te.Topic)
}

// blockingHandler holds one card until released.
type blockingHandler struct {
	blockCard string
	release   chan struct{}
	entered   chan struct{}
}

func (h *blockingHandler) Handle(_ context.Context, env comm.Envelope) (service.Outcome, error) {
	if env.CardID == h.blockCard {
		close(h.entered)
		<-h.release
	}
	return service.Outcome{Reply: comm.Granted(), Decision: service.Decision{Granted: true}}, nil
}

func TestBroker_CardsDoNotBlockEachOther(t *testing.T) {
	conn := &fakeConn{}
	h := &blockingHandler{blockCard: "slow", release: make(chan struct{}), entered: make(chan struct{})}
	b := NewBroker(conn, h, Config{InboundTopic: "server", Workers: 2})

	b.handleMessage(&nats.Msg{Data: []byte("r-slow&enter&slow")})
	<-h.entered
	b.handleMessage(&nats.Msg{Data: []byte("r-fast&enter&fast")})

	require.Eventually(t, func() bool { return len(conn.on("r-fast")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.on("r-slow"))

	close(h.release)
	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, []string{"pass"}, conn.on("r-slow"))
}

// orderHandler records reply topics in the order it handles them.
type orderHandler struct {
	mu   sync.Mutex
	seen []string
	slow string
}

func (h *orderHandler) Handle(_ context.Context, env comm.Envelope) (service.Outcome, error) {
	if env.ReplyTopic == h.slow {
		time.Sleep(50 * time.Millisecond)
	}
	h.mu.Lock()
	h.seen = append(h.seen, env.ReplyTopic)
	h.mu.Unlock()
	return service.Outcome{Reply: comm.Granted(), Decision: service.Decision{Granted: true}}, nil
}

func TestBroker_SameCardKeepsArrivalOrder(t *testing.T) {
	conn := &fakeConn{}
	h := &orderHandler{slow: "r1"}
	b := NewBroker(conn, h, Config{InboundTopic: "server", Workers: 4})

	b.handleMessage(&nats.Msg{Data: []byte("r1&enter&" + card)})
	b.handleMessage(&nats.Msg{Data: []byte("r2&exit&" + card)})
	b.handleMessage(&nats.Msg{Data: []byte("r3&enter&" + card)})
	b.handleMessage(&nats.Msg{Data: []byte("other&enter&[9, 9, 9, 9, 9]")})
	require.NoError(t, b.workers.Wait())

	var sameCard []string
	for _, topic := range h.seen {
		if topic != "other" {
			sameCard = append(sameCard, topic)
		}
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, sameCard)
	assert.Len(t, h.seen, 4)
	assert.Empty(t, b.queues)
}

func TestBroker_ShutdownDropsLateMessages(t *testing.T) {
	now := time.Now()
	b, conn, h, _ := newTestBroker(t, &now)

	require.NoError(t, b.Shutdown(context.Background()))
	b.handleMessage(&nats.Msg{Data: []byte("reply1&enter&" + card)})

	assert.Empty(t, conn.msgs)
	assert.Equal(t, int32(0), h.calls.Load())
}

func TestBroker_StartUsesQueueGroup(t *testing.T) {
	conn := &fakeConn{}
	b := NewBroker(conn, failingHandler{}, Config{InboundTopic: "server", QueueGroup: "gateways"})

	require.NoError(t, b.Start())
	assert.Equal(t, "server", conn.subject)
	assert.Equal(t, "gateways", conn.queue)
}

func TestBroker_HeartbeatUntilCanceled(t *testing.T) {
	now := time.Now()
	b, conn, _, _ := newTestBroker(t, &now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Heartbeat(ctx, "gate.heartbeat", 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(conn.on("gate.heartbeat")) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var hb comm.ServiceHeartbeat
	require.NoError(t, json.Unmarshal([]byte(conn.on("gate.heartbeat")[0]), &hb))
	assert.Equal(t, "gw-1", hb.ID)
	assert.False(t, hb.Timestamp.IsZero())
}
