// Package storetest holds behaviour tests shared by every store engine.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

// Factory returns empty stores for one subtest.
type Factory func(t *testing.T) (store.Cards, store.Sessions)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStores Factory) {
	t.Run("RegisterAndList", func(t *testing.T) { testRegisterAndList(t, newStores) })
	t.Run("RegisterDuplicate", func(t *testing.T) { testRegisterDuplicate(t, newStores) })
	t.Run("UnregisterMissing", func(t *testing.T) { testUnregisterMissing(t, newStores) })
	t.Run("UnregisterKeepsHistory", func(t *testing.T) { testUnregisterKeepsHistory(t, newStores) })
	t.Run("OpenCloseRoundTrip", func(t *testing.T) { testOpenCloseRoundTrip(t, newStores) })
	t.Run("SecondOpenRejected", func(t *testing.T) { testSecondOpenRejected(t, newStores) })
	t.Run("CloseWithoutOpen", func(t *testing.T) { testCloseWithoutOpen(t, newStores) })
	t.Run("MostRecentOrdering", func(t *testing.T) { testMostRecentOrdering(t, newStores) })
	t.Run("ExitBeforeEnterClamped", func(t *testing.T) { testExitBeforeEnterClamped(t, newStores) })
	t.Run("EnterBeforeLastExitClamped", func(t *testing.T) { testEnterBeforeLastExitClamped(t, newStores) })
	t.Run("SessionsBetween", func(t *testing.T) { testSessionsBetween(t, newStores) })
	t.Run("ConcurrentOpen", func(t *testing.T) { testConcurrentOpen(t, newStores) })
}

func testRegisterAndList(t *testing.T, newStores Factory) {
	cards, _ := newStores(t)
	ctx := context.Background()

	require.NoError(t, cards.RegisterCard(ctx, "[1, 2, 3, 4, 5]", t0))
	require.NoError(t, cards.RegisterCard(ctx, "[9, 9, 9, 9, 9]", t0.Add(time.Minute)))

	ok, err := cards.IsRegistered(ctx, "[1, 2, 3, 4, 5]")
	require.NoError(t, err)
	assert.True(t, ok)

	// exact match only
	ok, err = cards.IsRegistered(ctx, "[1, 2, 3, 4, 5] ")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := cards.ListCards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "[1, 2, 3, 4, 5]", list[0].CardID)
	assert.Equal(t, t0, list[0].CreatedAt)
}

func testRegisterDuplicate(t *testing.T, newStores Factory) {
	cards, _ := newStores(t)
	ctx := context.Background()

	require.NoError(t, cards.RegisterCard(ctx, "c1", t0))
	err := cards.RegisterCard(ctx, "c1", t0)
	assert.ErrorIs(t, err, store.ErrCardExists)
}

func testUnregisterMissing(t *testing.T, newStores Factory) {
	cards, _ := newStores(t)

	err := cards.UnregisterCard(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrCardNotFound)
}

func testUnregisterKeepsHistory(t *testing.T, newStores Factory) {
	cards, sessions := newStores(t)
	ctx := context.Background()

	require.NoError(t, cards.RegisterCard(ctx, "c1", t0))
	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	require.NoError(t, cards.UnregisterCard(ctx, "c1"))

	ok, err := cards.IsRegistered(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	hist, err := sessions.SessionsForCard(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func testOpenCloseRoundTrip(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	last, err := sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0.Add(300*time.Millisecond)))

	open, err := sessions.HasOpenSession(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, open)

	last, err = sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.IsOpen())
	assert.NotEmpty(t, last.ID)
	// stored at whole-second precision in UTC
	assert.Equal(t, t0, last.EnterTime)

	closed, err := sessions.CloseOpenSession(ctx, "c1", t0.Add(125*time.Second))
	require.NoError(t, err)
	assert.True(t, closed)

	last, err = sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.False(t, last.IsOpen())
	assert.Equal(t, 125*time.Second, last.Duration())

	open, err = sessions.HasOpenSession(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, open)
}

func testSecondOpenRejected(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	err := sessions.OpenSession(ctx, "c1", t0.Add(time.Second))
	assert.ErrorIs(t, err, store.ErrSessionAlreadyOpen)

	// another card is unaffected
	require.NoError(t, sessions.OpenSession(ctx, "c2", t0))

	all, err := sessions.SessionsForCard(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testCloseWithoutOpen(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	closed, err := sessions.CloseOpenSession(ctx, "c1", t0)
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	closed, err = sessions.CloseOpenSession(ctx, "c1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, closed)

	// closed sessions are immutable
	closed, err = sessions.CloseOpenSession(ctx, "c1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closed)

	last, err := sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, last.Duration())
}

func testMostRecentOrdering(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	_, err := sessions.CloseOpenSession(ctx, "c1", t0)
	require.NoError(t, err)

	// re-entry within the same second must win the tie
	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))

	last, err := sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.IsOpen())
}

func testExitBeforeEnterClamped(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	closed, err := sessions.CloseOpenSession(ctx, "c1", t0.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, closed)

	last, err := sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), last.Duration())
}

// A gateway with a lagging clock must still produce an open session that
// sorts first, otherwise the card could never leave.
func testEnterBeforeLastExitClamped(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0))
	closed, err := sessions.CloseOpenSession(ctx, "c1", t0.Add(10*time.Second))
	require.NoError(t, err)
	require.True(t, closed)

	require.NoError(t, sessions.OpenSession(ctx, "c1", t0.Add(-30*time.Second)))

	last, err := sessions.MostRecentSession(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.IsOpen())
	assert.Equal(t, t0.Add(10*time.Second), last.EnterTime)

	closed, err = sessions.CloseOpenSession(ctx, "c1", t0.Add(-20*time.Second))
	require.NoError(t, err)
	require.True(t, closed)

	open, err := sessions.HasOpenSession(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, open)
}

func testSessionsBetween(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	for i, card := range []string{"a", "b", "c"} {
		enter := t0.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, sessions.OpenSession(ctx, card, enter))
	}

	got, err := sessions.SessionsBetween(ctx, t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CardID)
	assert.Equal(t, "b", got[1].CardID)

	all, err := sessions.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testConcurrentOpen(t *testing.T, newStores Factory) {
	_, sessions := newStores(t)
	ctx := context.Background()

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		opened   int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sessions.OpenSession(ctx, "c1", t0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case assert.ErrorIs(t, err, store.ErrSessionAlreadyOpen, fmt.Sprint(err)):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, n-1, rejected)
}
