package broker

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/comm"
)

const DefaultHeartbeatThreshold = 15 * time.Second

// Broadcaster fans a frame out to the websocket clients interested in cardID.
type Broadcaster interface {
	Broadcast(cardID string, m *comm.WSMessage)
}

// Gateway is a gate service instance seen on the heartbeat topic.
type Gateway struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
	Alive    bool      `json:"alive"`
}

type Broker struct {
	Conn *nats.Conn
	ws   Broadcaster

	LastHeartbeatMap   sync.Map // instance id -> time.Time
	heartbeatThreshold time.Duration
	now                func() time.Time
}

func NewBroker(conn *nats.Conn, ws Broadcaster) *Broker {
	return &Broker{
		Conn:               conn,
		ws:                 ws,
		heartbeatThreshold: DefaultHeartbeatThreshold,
		now:                time.Now,
	}
}

// SubscribeEvents relays gate decisions to websocket clients.
func (b *Broker) SubscribeEvents(topic string) (*nats.Subscription, error) {
	return b.Conn.Subscribe(topic, b.handleEvent)
}

// SubscribeHeartbeats tracks live gate service instances.
func (b *Broker) SubscribeHeartbeats(topic string) (*nats.Subscription, error) {
	return b.Conn.Subscribe(topic, b.handleHeartbeat)
}

func (b *Broker) handleEvent(msgNats *nats.Msg) {
	var ev comm.GateEvent
	if err := json.Unmarshal(msgNats.Data, &ev); err != nil {
		log.Errorf("Error invalid gate event %s", err)
		return
	}

	b.ws.Broadcast(ev.CardID, &comm.WSMessage{Type: "gate-event", Data: msgNats.Data})
}

func (b *Broker) handleHeartbeat(msgNats *nats.Msg) {
	var hb comm.ServiceHeartbeat
	if err := json.Unmarshal(msgNats.Data, &hb); err != nil || hb.ID == "" {
		log.Errorf("Error invalid heartbeat %s", string(msgNats.Data))
		return
	}

	if _, seen := b.LastHeartbeatMap.Swap(hb.ID, b.now()); !seen {
		log.Infof("gate service %s joined", hb.ID)
	}
}

// Gateways lists every instance ever heard from, newest first.
func (b *Broker) Gateways() []Gateway {
	now := b.now()
	var out []Gateway
	b.LastHeartbeatMap.Range(func(key, value any) bool {
		seen := value.(time.Time)
		out = append(out, Gateway{
			ID:       key.(string),
			LastSeen: seen,
			Alive:    now.Sub(seen) <= b.heartbeatThreshold,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}
