package comm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Enter(t *testing.T) {
	env, err := Decode([]byte("reply1&enter&[1, 2, 3, 4, 5]"))
	require.NoError(t, err)

	assert.Equal(t, "reply1", env.ReplyTopic)
	assert.Equal(t, Enter, env.Direction)
	assert.Equal(t, "[1, 2, 3, 4, 5]", env.CardID)
}

func TestDecode_Exit(t *testing.T) {
	env, err := Decode([]byte("gate/7&exit&ABC"))
	require.NoError(t, err)

	assert.Equal(t, Exit, env.Direction)
	assert.Equal(t, "gate/7", env.ReplyTopic)
	assert.Equal(t, "ABC", env.CardID)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"two fields":        "onlytwo&fields",
		"four fields":       "a&enter&b&c",
		"no delimiter":      "garbage",
		"unknown direction": "r&leave&card",
		"upper case":        "r&ENTER&card",
		"empty reply topic": "&enter&card",
		"empty card":        "r&exit&",
		"empty payload":     "",
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.Error(t, err)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr))
			assert.Equal(t, payload, decErr.Payload)
		})
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := Decode([]byte{'r', '&', 0xff, 0xfe, '&', 'c'})

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "UTF-8")
}

func TestEnvelope_EncodeRoundTrip(t *testing.T) {
	in := Envelope{ReplyTopic: "reply1", Direction: Exit, CardID: "[1, 2, 3, 4, 5]"}
	assert.Equal(t, "reply1&exit&[1, 2, 3, 4, 5]", string(in.Encode()))

	out, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReply_Encoding(t *testing.T) {
	assert.Equal(t, "no_pass", Denied().String())
	assert.Equal(t, "pass", Granted().String())
	assert.Equal(t, "pass&125", GrantedExit(125*time.Second).String())
	assert.Equal(t, "pass&0", GrantedExit(0).String())
	// sub-second remainder is dropped
	assert.Equal(t, "pass&2", GrantedExit(2900*time.Millisecond).String())
}

func TestParseReply(t *testing.T) {
	r, err := ParseReply([]byte("pass&125"))
	require.NoError(t, err)
	assert.True(t, r.Granted)
	assert.True(t, r.HasDuration)
	assert.Equal(t, 125*time.Second, r.Duration)

	r, err = ParseReply([]byte("no_pass"))
	require.NoError(t, err)
	assert.False(t, r.Granted)

	_, err = ParseReply([]byte("pass&soon"))
	assert.Error(t, err)

	_, err = ParseReply([]byte("maybe"))
	assert.Error(t, err)
}
