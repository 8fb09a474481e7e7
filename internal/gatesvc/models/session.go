package models

import "time"

// Session is one visit: opened by a granted enter, closed by a granted exit.
type Session struct {
	ID        string     `json:"id" yaml:"id"`
	CardID    string     `json:"card_id" yaml:"card_id"`
	EnterTime time.Time  `json:"enter_time" yaml:"enter_time"`
	ExitTime  *time.Time `json:"exit_time,omitempty" yaml:"exit_time,omitempty"`
}

func (s *Session) IsOpen() bool {
	return s.ExitTime == nil
}

// Duration is exit minus enter, or zero while the session is open.
func (s *Session) Duration() time.Duration {
	if s.ExitTime == nil {
		return 0
	}
	return s.ExitTime.Sub(s.EnterTime)
}

// DurationUntil treats an open session as ending at now.
func (s *Session) DurationUntil(now time.Time) time.Duration {
	if s.ExitTime == nil {
		if now.Before(s.EnterTime) {
			return 0
		}
		return now.Sub(s.EnterTime)
	}
	return s.Duration()
}
