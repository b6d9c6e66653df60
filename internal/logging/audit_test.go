package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAudit(t *testing.T, data []byte) []AuditEvent {
	t.Helper()
	var events []AuditEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestAuditLoggerRedactsContent(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf, "sess-1", true)

	a.Log(AuditEvent{Kind: "text_output", Source: "companion", Fields: map[string]any{
		"text":    "สวัสดีค่ะ",
		"emotion": "happy",
	}})

	events := decodeAudit(t, buf.Bytes())
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.NotZero(t, ev.Timestamp)
	assert.Equal(t, "<9 chars>", ev.Fields["text"])
	assert.Equal(t, "happy", ev.Fields["emotion"])
}

func TestAuditLoggerKeepsContentWhenNotRedacting(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf, "", false)
	a.Log(AuditEvent{Kind: "user_text_input", Fields: map[string]any{"text": "hello"}})

	events := decodeAudit(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Fields["text"])
}

func TestOpenAuditAppendsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	a, err := OpenAudit(path, "s", true)
	require.NoError(t, err)
	a.Log(AuditEvent{Kind: "system_ready"})
	require.NoError(t, a.Close())
	a.Log(AuditEvent{Kind: "dropped"})

	b, err := OpenAudit(path, "s", true)
	require.NoError(t, err)
	b.Log(AuditEvent{Kind: "system_shutdown"})
	require.NoError(t, b.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events := decodeAudit(t, data)
	require.Len(t, events, 2)
	assert.Equal(t, "system_ready", events[0].Kind)
	assert.Equal(t, "system_shutdown", events[1].Kind)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
