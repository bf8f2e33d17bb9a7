package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/kokoroflow/internal/mind"
	"github.com/keshon/kokoroflow/internal/storage"
)

var at = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// setup writes a config pointing at a JSON store seeded with two sessions.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	dbPath := filepath.Join(dir, "sessions.json")

	cfg := "storage:\n  driver: json\n  path: " + dbPath + "\nlog:\n  level: error\n"
	cfgPath := filepath.Join(dir, "kfc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	st, err := storage.OpenJSON(dbPath, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, mind.Record{
		ID: "discord:dm:1", State: mind.StateIdle, LastSender: mind.SenderUser, LastActivityAt: at,
		Events: []mind.Event{{ID: "e1", At: at, Kind: mind.EventUserMessage, Visible: true, Sender: mind.SenderUser, UserName: "alice", Text: "good morning"}},
	}))
	require.NoError(t, st.Save(ctx, mind.Record{
		ID: "console:local", State: mind.StateWaiting, LastSender: mind.SenderBot, LastActivityAt: at.Add(time.Minute),
		Wait: &mind.WaitEpisode{StartedAt: at, Deadline: at.Add(2 * time.Minute), Planned: 2 * time.Minute},
	}))
	require.NoError(t, st.Close())
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	err := app.Run(append([]string{"kokoroflow"}, args...))
	return out.String(), err
}

func TestSessionsList(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, "--config", cfg, "sessions", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "console:local"), "most recent first")
	assert.Contains(t, lines[1], "waiting")
	assert.Contains(t, lines[2], "discord:dm:1")
	assert.Contains(t, lines[2], "idle")
}

func TestSessionsShow(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, "--config", cfg, "sessions", "show", "discord:dm:1")
	require.NoError(t, err)
	assert.Contains(t, out, "alice said: good morning")

	out, err = run(t, "--config", cfg, "sessions", "show", "--format", "table", "discord:dm:1")
	require.NoError(t, err)
	assert.Contains(t, out, "| time |")

	out, err = run(t, "--config", cfg, "sessions", "show", "-f", "json", "console:local")
	require.NoError(t, err)
	var rec mind.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, mind.StateWaiting, rec.State)
	require.NotNil(t, rec.Wait)
	assert.Equal(t, 2*time.Minute, rec.Wait.Planned)
}

func TestSessionsShowErrors(t *testing.T) {
	cfg := setup(t)

	_, err := run(t, "--config", cfg, "sessions", "show", "nobody")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "--config", cfg, "sessions", "show", "--format", "xml", "discord:dm:1")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "--config", cfg, "sessions", "show")
	assert.ErrorContains(t, err, "expected one session id")
}

func TestRunRequiresToken(t *testing.T) {
	cfg := setup(t)
	t.Setenv("KFC_DISCORD_TOKEN", "")

	_, err := run(t, "--config", cfg, "run")
	assert.ErrorContains(t, err, "token is required")
}
