package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", slog.String("agent_id", "ww-1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "agent_id=ww-1")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "error", Writer: &buf})
	require.NoError(t, err)

	l.Info("before")
	require.NoError(t, l.SetLevel("debug"))
	l.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
	assert.Equal(t, slog.LevelDebug, l.Level())
	assert.Error(t, l.SetLevel("loud"))
}

func TestFanoutToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawner.log")
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Writer: &buf, File: path})
	require.NoError(t, err)

	l.Info("agent spawned", slog.String("type", "whale-watcher"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "agent spawned", rec["msg"])
	assert.Equal(t, "whale-watcher", rec["type"])
	assert.Contains(t, buf.String(), "agent spawned")
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lv)

	lv, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lv)

	_, err = ParseLevel("trace")
	assert.Error(t, err)
}
