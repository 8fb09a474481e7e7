package comm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FieldDelimiter separates the fields of inbound and outbound gate payloads.
const FieldDelimiter = "&"

// Direction tells which side of the gate a scan came from.
type Direction int

const (
	Enter Direction = iota + 1
	Exit
)

func (d Direction) String() string {
	switch d {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// ParseDirection maps the wire token to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "enter":
		return Enter, true
	case "exit":
		return Exit, true
	default:
		return 0, false
	}
}

// Envelope is a decoded scan event.
type Envelope struct {
	ReplyTopic string
	Direction  Direction
	CardID     string
}

// Encode renders the envelope in the inbound wire format
// <reply_topic>&<direction>&<card_id>.
func (e Envelope) Encode() []byte {
	return []byte(e.ReplyTopic + FieldDelimiter + e.Direction.String() + FieldDelimiter + e.CardID)
}

// DecodeError reports an inbound payload that is not a scan event.
type DecodeError struct {
	Payload string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope %q: %s", e.Payload, e.Reason)
}

// Decode parses <reply_topic>&<direction>&<card_id>.
func Decode(raw []byte) (Envelope, error) {
	if !utf8.Valid(raw) {
		return Envelope{}, &DecodeError{Payload: string(raw), Reason: "payload is not valid UTF-8"}
	}

	payload := string(raw)
	fields := strings.Split(payload, FieldDelimiter)
	if len(fields) != 3 {
		return Envelope{}, &DecodeError{
			Payload: payload,
			Reason:  fmt.Sprintf("expected 3 fields, got %d", len(fields)),
		}
	}

	dir, ok := ParseDirection(fields[1])
	if !ok {
		return Envelope{}, &DecodeError{Payload: payload, Reason: fmt.Sprintf("unknown direction %q", fields[1])}
	}
	if fields[0] == "" {
		return Envelope{}, &DecodeError{Payload: payload, Reason: "empty reply topic"}
	}
	if fields[2] == "" {
		return Envelope{}, &DecodeError{Payload: payload, Reason: "empty card id"}
	}

	return Envelope{
		ReplyTopic: fields[0],
		Direction:  dir,
		CardID:     fields[2],
	}, nil
}
