package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/gate-services/internal/comm"
)

// newHub upgrades every request and registers it under "sock-1".
func newHub(t *testing.T) (*Ws, *websocket.Conn) {
	t.Helper()

	hub := NewWs()
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.StoreConnection("sock-1", conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("socket was not registered")
	}
	return hub, conn
}

func TestBroadcastRespectsFilter(t *testing.T) {
	hub, conn := newHub(t)

	hub.SocketMessage("sock-1", &comm.WSMessage{Type: "filter", Data: json.RawMessage(`{"card_id":"a"}`)})
	var ack comm.WSMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "filter-ok", ack.Type)

	hub.Broadcast("b", &comm.WSMessage{Type: "gate-event", Data: json.RawMessage(`"b"`)})
	hub.Broadcast("a", &comm.WSMessage{Type: "gate-event", Data: json.RawMessage(`"a"`)})

	var got comm.WSMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.JSONEq(t, `"a"`, string(got.Data))
}

func TestBroadcastDropsStalledClient(t *testing.T) {
	old := writeWait
	writeWait = 50 * time.Millisecond
	t.Cleanup(func() { writeWait = old })

	hub, _ := newHub(t)
	require.Equal(t, 1, hub.Count())

	// the client never reads, so socket buffers fill and a write times out
	big := json.RawMessage(`"` + strings.Repeat("x", 1<<20) + `"`)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500 && hub.Count() > 0; i++ {
			hub.Broadcast("a", &comm.WSMessage{Type: "gate-event", Data: big})
		}
	}()

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("broadcast blocked on a stalled client")
	}
	assert.Equal(t, 0, hub.Count())
}
