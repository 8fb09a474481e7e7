package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/comm"
	"github.com/avvvet/gate-services/internal/monitorsvc/broker"
	"github.com/avvvet/gate-services/internal/monitorsvc/ws"
)

// Gateways reports the gate service instances heard on the heartbeat topic.
type Gateways interface {
	Gateways() []broker.Gateway
}

type Handler struct {
	upgrader websocket.Upgrader
	ws       *ws.Ws
	gateways Gateways
	port     string
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func NewHandler(s *ws.Ws, gateways Gateways, port string, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		ws:       s,
		gateways: gateways,
		port:     port,
	}
	return h
}

// HandleWebSocket registers a monitor client. Every gate decision is pushed
// to it until it disconnects or sets a card filter.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.ws.StoreConnection(socketId, conn)
	h.ws.Send(socketId, &comm.WSMessage{Type: "connected", SocketId: socketId})

	log.Infof("New WebSocket connection established: %s", socketId)

	go h.handleConnection(conn, socketId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		log.Infof("Closing WebSocket connection: %s", socketId)
		h.ws.HandleDisconnect(socketId)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			} else {
				log.Infof("WebSocket connection closed normally for socket: %s", socketId)
			}
			break
		}

		message := &comm.WSMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			log.Errorf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.sendErrorToClient(socketId, "Invalid message format")
			continue
		}

		log.Debugf("Received message from socket %s: type=%s", socketId, message.Type)
		h.ws.SocketMessage(socketId, message)
	}
}

func (h *Handler) sendErrorToClient(socketId, errorMsg string) {
	data, _ := json.Marshal(map[string]string{"error": errorMsg})
	h.ws.Send(socketId, &comm.WSMessage{Type: "error", Data: data, SocketId: socketId})
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "monitor service is running at port " + h.port,
		Code:    http.StatusOK,
		Data:    map[string]int{"clients": h.ws.Count()},
	})
}

func (h *Handler) GatewaysHandler(w http.ResponseWriter, r *http.Request) {
	list := h.gateways.Gateways()
	if list == nil {
		list = []broker.Gateway{}
	}
	h.CreateResponse(w, Response{Message: "gate service instances", Code: http.StatusOK, Data: list})
}
