package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CardStats struct {
	CardID       string          `json:"card_id" yaml:"card_id"`
	Entries      int             `json:"entries" yaml:"entries"`
	Total        time.Duration   `json:"-" yaml:"-"`
	Average      time.Duration   `json:"-" yaml:"-"`
	AverageHours decimal.Decimal `json:"average_hours" yaml:"average_hours"`
	AverageHM    string          `json:"average_hm" yaml:"average_hm"` // "7h 30min"
}

type PeriodStats struct {
	Period string      `json:"period" yaml:"period"`
	From   string      `json:"from" yaml:"from"` // YYYY-MM-DD, inclusive
	To     string      `json:"to" yaml:"to"`
	Cards  []CardStats `json:"cards" yaml:"cards"`
}

type WorkTime struct {
	CardID  string        `json:"card_id" yaml:"card_id"`
	Date    string        `json:"date" yaml:"date"` // YYYY-MM-DD
	Entries int           `json:"entries" yaml:"entries"`
	Total   time.Duration `json:"-" yaml:"-"`
	Seconds int64         `json:"seconds" yaml:"seconds"`
	HM      string        `json:"hm" yaml:"hm"`
	Inside  bool          `json:"inside" yaml:"inside"`
}
