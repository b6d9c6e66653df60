package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT TRAIL - one JSON line per published event
// =============================================================================

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp int64          `json:"ts"`                // Unix milliseconds
	Kind      string         `json:"event"`             // Event kind
	Source    string         `json:"source,omitempty"`  // Publishing component
	EventID   string         `json:"id,omitempty"`      // Event id
	SessionID string         `json:"session,omitempty"` // Session correlation
	Fields    map[string]any `json:"fields,omitempty"`  // Event payload, possibly redacted
}

// contentKeys are payload keys carrying conversation text.
var contentKeys = map[string]bool{
	"text":          true,
	"content":       true,
	"message":       true,
	"response":      true,
	"system_prompt": true,
	"farewell":      true,
}

// AuditLogger appends audit events to a writer. Safe for concurrent use.
type AuditLogger struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	sessionID string
	redact    bool
}

// NewAuditLogger writes to w. With redact set, conversation text in Fields is
// replaced by its length.
func NewAuditLogger(w io.Writer, sessionID string, redact bool) *AuditLogger {
	return &AuditLogger{w: w, sessionID: sessionID, redact: redact}
}

// OpenAudit appends to the file at path (mode 0600), creating it if needed.
func OpenAudit(path, sessionID string, redact bool) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a := NewAuditLogger(file, sessionID, redact)
	a.closer = file
	Boot("audit trail: %s (redact=%v)", path, redact)
	return a, nil
}

// Log writes one audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if a.redact && len(event.Fields) > 0 {
		event.Fields = redactFields(event.Fields)
	}

	data, err := json.Marshal(event)
	if err != nil {
		Get(CategoryEvents).Warn("audit: cannot encode %s: %v", event.Kind, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return
	}
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		Get(CategoryEvents).Warn("audit: write failed: %v", err)
	}
}

// Close closes the underlying file, if any. Later Log calls are dropped.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w = nil
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func redactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok && contentKeys[k] {
			out[k] = fmt.Sprintf("<%d chars>", len([]rune(s)))
			continue
		}
		out[k] = v
	}
	return out
}
