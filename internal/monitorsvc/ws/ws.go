package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/comm"
)

// writeWait bounds a single frame write; a slower client is dropped.
var writeWait = 5 * time.Second

// client is one websocket with its optional card filter. gorilla
// connections allow a single concurrent writer, hence mu.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	cardID string
}

func (c *client) write(m *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(m)
}

type Ws struct {
	connMap sync.Map // socketId -> *client
}

func NewWs() *Ws {
	return &Ws{}
}

// SocketMessage handles a frame sent by a web client.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "filter":
		s.handleFilter(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

// handleFilter narrows the feed to one card. An empty card_id clears it.
func (s *Ws) handleFilter(socketId string, msg *comm.WSMessage) {
	var payload struct {
		CardID string `json:"card_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid_filter_data Malformed filter payload %s", err)
		return
	}

	c, ok := s.client(socketId)
	if !ok {
		return
	}
	c.mu.Lock()
	c.cardID = payload.CardID
	c.mu.Unlock()

	s.send(socketId, c, &comm.WSMessage{Type: "filter-ok", Data: msg.Data, SocketId: socketId})
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &client{conn: conn})
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	c, ok := s.client(socketId)
	if !ok {
		return nil, false
	}
	return c.conn, true
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
}

// Send writes m to a single socket.
func (s *Ws) Send(socketId string, m *comm.WSMessage) {
	if c, ok := s.client(socketId); ok {
		s.send(socketId, c, m)
	}
}

// Broadcast writes m to every socket whose filter matches cardID.
func (s *Ws) Broadcast(cardID string, m *comm.WSMessage) {
	s.connMap.Range(func(key, value any) bool {
		c := value.(*client)
		c.mu.Lock()
		filter := c.cardID
		c.mu.Unlock()

		if filter == "" || filter == cardID {
			s.send(key.(string), c, m)
		}
		return true
	})
}

func (s *Ws) Count() int {
	n := 0
	s.connMap.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Ws) client(socketId string) (*client, bool) {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return v.(*client), true
}

func (s *Ws) send(socketId string, c *client, m *comm.WSMessage) {
	if err := c.write(m); err != nil {
		log.Warnf("write to socket %s failed, dropping it: %v", socketId, err)
		s.HandleDisconnect(socketId)
		c.conn.Close()
	}
}
