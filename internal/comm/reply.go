package comm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	replyPass   = "pass"
	replyNoPass = "no_pass"
)

// Reply is the gate-open decision sent back to a reader.
type Reply struct {
	Granted bool
	// Duration is only sent on a granted exit.
	Duration    time.Duration
	HasDuration bool
}

func Denied() Reply { return Reply{} }

func Granted() Reply { return Reply{Granted: true} }

func GrantedExit(d time.Duration) Reply {
	return Reply{Granted: true, Duration: d, HasDuration: true}
}

// Seconds is the duration in whole seconds, as carried on the wire.
func (r Reply) Seconds() int64 {
	return int64(r.Duration / time.Second)
}

func (r Reply) String() string {
	switch {
	case !r.Granted:
		return replyNoPass
	case r.HasDuration:
		return replyPass + FieldDelimiter + strconv.FormatInt(r.Seconds(), 10)
	default:
		return replyPass
	}
}

func (r Reply) Bytes() []byte {
	return []byte(r.String())
}

// ParseReply is the inverse of Reply.String.
func ParseReply(raw []byte) (Reply, error) {
	s := string(raw)
	switch {
	case s == replyNoPass:
		return Denied(), nil
	case s == replyPass:
		return Granted(), nil
	case strings.HasPrefix(s, replyPass+FieldDelimiter):
		secs, err := strconv.ParseInt(strings.TrimPrefix(s, replyPass+FieldDelimiter), 10, 64)
		if err != nil || secs < 0 {
			return Reply{}, fmt.Errorf("bad duration in reply %q", s)
		}
		return GrantedExit(time.Duration(secs) * time.Second), nil
	default:
		return Reply{}, fmt.Errorf("unrecognized reply %q", s)
	}
}
