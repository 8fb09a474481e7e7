package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/gate-services/internal/comm"
)

type sent struct {
	cardID string
	msg    *comm.WSMessage
}

type fakeWs struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeWs) Broadcast(cardID string, m *comm.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{cardID: cardID, msg: m})
}

func TestHandleEvent_Broadcasts(t *testing.T) {
	ws := &fakeWs{}
	b := NewBroker(nil, ws)

	payload := `{"card_id":"[1, 2, 3, 4, 5]","direction":"exit","granted":true,"reason":"exited","duration_s":125}`
	b.handleEvent(&nats.Msg{Data: []byte(payload)})

	require.Len(t, ws.sent, 1)
	assert.Equal(t, "[1, 2, 3, 4, 5]", ws.sent[0].cardID)
	assert.Equal(t, "gate-event", ws.sent[0].msg.Type)
	assert.JSONEq(t, payload, string(ws.sent[0].msg.Data))
}

func TestHandleEvent_DropsGarbage(t *testing.T) {
	ws := &fakeWs{}
	b := NewBroker(nil, ws)

	b.handleEvent(&nats.Msg{Data: []byte("reply1&enter&[1, 2, 3, 4, 5]")})
	assert.Empty(t, ws.sent)
}

func TestGateways_AliveWithinThreshold(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	b := NewBroker(nil, &fakeWs{})
	b.now = func() time.Time { return now }

	b.handleHeartbeat(&nats.Msg{Data: []byte(`{"id":"gw-old"}`)})
	now = now.Add(20 * time.Second)
	b.handleHeartbeat(&nats.Msg{Data: []byte(`{"id":"gw-new"}`)})
	b.handleHeartbeat(&nats.Msg{Data: []byte(`{}`)})

	gws := b.Gateways()
	require.Len(t, gws, 2)
	assert.Equal(t, "gw-new", gws[0].ID)
	assert.True(t, gws[0].Alive)
	assert.Equal(t, "gw-old", gws[1].ID)
	assert.False(t, gws[1].Alive)
}
