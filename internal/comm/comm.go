package comm

import (
	"encoding/json"
	"time"
)

// WSMessage is the frame written to monitor websocket clients.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "gate-event"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// GateEvent is published on the events topic after every decision.
type GateEvent struct {
	CardID          string    `json:"card_id"`
	Direction       string    `json:"direction"`
	ReplyTopic      string    `json:"reply_topic"`
	Granted         bool      `json:"granted"`
	Reason          string    `json:"reason"`
	DurationSeconds int64     `json:"duration_s,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
	InstanceId      string    `json:"instance_id,omitempty"`
}

type ServiceHeartbeat struct {
	ID        string    `json:"id"` // service id
	Timestamp time.Time `json:"timestamp"`
}
