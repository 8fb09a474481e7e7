package service

import "github.com/avvvet/gate-services/internal/comm"

type Action int

const (
	ActionNone Action = iota
	ActionOpenSession
	ActionCloseSession
)

func (a Action) String() string {
	switch a {
	case ActionOpenSession:
		return "open_session"
	case ActionCloseSession:
		return "close_session"
	default:
		return "none"
	}
}

const (
	ReasonNotRegistered = "not_registered"
	ReasonAlreadyInside = "already_inside"
	ReasonEntered       = "entered"
	ReasonNotInside     = "not_inside"
	ReasonExited        = "exited"
	ReasonBadDirection  = "bad_direction"
)

type Decision struct {
	Action  Action
	Granted bool
	Reason  string
}

// Decide is the gate state machine. authorized is ignored for exits: a card
// can only be inside after an authorized enter.
func Decide(direction comm.Direction, authorized, inside bool) Decision {
	switch direction {
	case comm.Enter:
		switch {
		case !authorized:
			return Decision{Action: ActionNone, Reason: ReasonNotRegistered}
		case inside:
			return Decision{Action: ActionNone, Reason: ReasonAlreadyInside}
		default:
			return Decision{Action: ActionOpenSession, Granted: true, Reason: ReasonEntered}
		}
	case comm.Exit:
		if !inside {
			return Decision{Action: ActionNone, Reason: ReasonNotInside}
		}
		return Decision{Action: ActionCloseSession, Granted: true, Reason: ReasonExited}
	default:
		return Decision{Action: ActionNone, Reason: ReasonBadDirection}
	}
}
