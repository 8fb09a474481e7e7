package models

import "time"

type RegisteredCard struct {
	CardID    string    `json:"card_id" yaml:"card_id"` // e.g. "[1, 2, 3, 4, 5]"
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
