package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/avvvet/gate-services/internal/comm"
)

const card = "[12, 0, 255, 7, 3]"

// run executes gatectl against a sqlite file in dir. Cannot run in
// parallel: rootCmd and its flags are shared.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--driver", "sqlite", "--db", filepath.Join(dir, "gate.db")}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCardLifecycle(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "-o", "table", "card", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No cards registered")

	out, err = run(t, dir, "-o", "table", "card", "register", card)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered card "+card)

	_, err = run(t, dir, "-o", "table", "card", "register", card)
	assert.ErrorContains(t, err, "already registered")

	_, err = run(t, dir, "-o", "table", "card", "register", "12345")
	assert.ErrorContains(t, err, "invalid card id")

	out, err = run(t, dir, "-o", "json", "card", "list")
	require.NoError(t, err)
	var cards []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, card, cards[0]["card_id"])

	out, err = run(t, dir, "-o", "table", "card", "unregister", card)
	require.NoError(t, err)
	assert.Contains(t, out, "Unregistered card")

	_, err = run(t, dir, "-o", "table", "card", "unregister", card)
	assert.Error(t, err)
}

func TestStatsAndWorkTime(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "-o", "table", "card", "register", card)
	require.NoError(t, err)

	out, err := run(t, dir, "-o", "yaml", "stats", "today")
	require.NoError(t, err)
	var stats []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "today", stats[0]["period"])

	out, err = run(t, dir, "-o", "table", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "this_month")

	_, err = run(t, dir, "-o", "table", "stats", "fortnight")
	assert.Error(t, err)

	out, err = run(t, dir, "-o", "table", "worktime", card)
	require.NoError(t, err)
	assert.Contains(t, out, "0h 0min over 0 entries (outside)")

	out, err = run(t, dir, "-o", "table", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded.")
}

func TestPrintReply(t *testing.T) {
	env := comm.Envelope{ReplyTopic: "r", Direction: comm.Exit, CardID: card}

	color.NoColor = true
	outputFormat = "table"
	var buf bytes.Buffer
	require.NoError(t, printReply(&buf, env, comm.GrantedExit(125*time.Second)))
	assert.Contains(t, buf.String(), "PASS exit "+card)
	assert.Contains(t, buf.String(), "after 2m5s")

	buf.Reset()
	require.NoError(t, printReply(&buf, env, comm.Denied()))
	assert.Contains(t, buf.String(), "NO PASS")

	outputFormat = "json"
	defer func() { outputFormat = "table" }()
	buf.Reset()
	require.NoError(t, printReply(&buf, env, comm.GrantedExit(125*time.Second)))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "pass&125", got["reply"])
	assert.Equal(t, float64(125), got["duration_s"])
}
