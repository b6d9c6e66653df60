// Package events provides the publish/subscribe bus that decouples the
// language-model client, memory store and persona engine.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what happened.
type EventKind string

const (
	// User input
	KindUserTextInput  EventKind = "user_text_input"
	KindUserVoiceInput EventKind = "user_voice_input"

	// Model processing
	KindModelRequest  EventKind = "model_request"
	KindModelResponse EventKind = "model_response"
	KindModelError    EventKind = "model_error"

	// Memory
	KindMemoryStore    EventKind = "memory_store"
	KindMemoryRetrieve EventKind = "memory_retrieve"

	// Persona
	KindPersonaChange EventKind = "persona_change"
	KindPersonaLoaded EventKind = "persona_loaded"

	// Output
	KindTextOutput    EventKind = "text_output"
	KindVoiceOutput   EventKind = "voice_output"
	KindEmotionOutput EventKind = "emotion_output"

	// System
	KindSystemError    EventKind = "system_error"
	KindSystemReady    EventKind = "system_ready"
	KindSystemShutdown EventKind = "system_shutdown"
)

// AllKinds lists every event kind in declaration order.
func AllKinds() []EventKind {
	return []EventKind{
		KindUserTextInput, KindUserVoiceInput,
		KindModelRequest, KindModelResponse, KindModelError,
		KindMemoryStore, KindMemoryRetrieve,
		KindPersonaChange, KindPersonaLoaded,
		KindTextOutput, KindVoiceOutput, KindEmotionOutput,
		KindSystemError, KindSystemReady, KindSystemShutdown,
	}
}

// Event is a published fact. Treat it as immutable once constructed.
type Event struct {
	ID        string
	Kind      EventKind
	Payload   map[string]any
	Timestamp time.Time
	Source    string // optional
}

// NewEvent creates an event stamped with a fresh id and the current time.
// The payload map is copied (one level deep).
func NewEvent(kind EventKind, payload map[string]any, source string) Event {
	p := make(map[string]any, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   p,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// String returns a short description suitable for logs.
func (e Event) String() string {
	return fmt.Sprintf("Event(%s, source=%s, id=%s)", e.Kind, e.Source, e.ID)
}

// Str returns the payload value for key as a string, or "".
func (e Event) Str(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}
