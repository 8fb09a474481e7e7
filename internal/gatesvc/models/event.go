package models

import "time"

// AccessEvent is an audit record of one gate decision.
type AccessEvent struct {
	CardID          string    `json:"card_id" bson:"card_id"`
	Direction       string    `json:"direction" bson:"direction"`
	ReplyTopic      string    `json:"reply_topic" bson:"reply_topic"`
	Granted         bool      `json:"granted" bson:"granted"`
	Reason          string    `json:"reason" bson:"reason"`
	DurationSeconds int64     `json:"duration_s,omitempty" bson:"duration_s,omitempty"`
	DecidedAt       time.Time `json:"decided_at" bson:"decided_at"`
	InstanceId      string    `json:"instance_id,omitempty" bson:"instance_id,omitempty"`
	ExpiresAt       time.Time `json:"-" bson:"expires_at"` // TTL index field
}
