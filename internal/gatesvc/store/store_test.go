package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	err := Wrap("open session", context.DeadlineExceeded)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "open session", se.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// already wrapped errors keep their original op
	again := Wrap("outer", err)
	require.ErrorAs(t, again, &se)
	assert.Equal(t, "open session", se.Op)
}

func TestWrap_PassesBusinessOutcomes(t *testing.T) {
	for _, sentinel := range []error{ErrSessionAlreadyOpen, ErrCardExists, ErrCardNotFound} {
		err := Wrap("op", fmt.Errorf("%w: x", sentinel))

		var se *StoreError
		assert.False(t, errors.As(err, &se))
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestNormalizeTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2026, 3, 2, 10, 0, 5, 900_000_000, loc)

	out := NormalizeTime(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, time.Date(2026, 3, 2, 7, 0, 5, 0, time.UTC), out)
}
