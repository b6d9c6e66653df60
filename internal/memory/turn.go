// Package memory keeps the bounded, optionally encrypted log of conversation
// turns and persists it through a pluggable backend.
package memory

import (
	"errors"
	"fmt"
	"time"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned by Append for roles other than user/assistant.
var ErrInvalidRole = errors.New("memory: invalid role")

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Turn is one entry of the conversation log.
type Turn struct {
	Timestamp time.Time      `json:"timestamp"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
}

// snapshot is the persisted document.
type snapshot struct {
	Memories []Turn    `json:"memories"`
	SavedAt  time.Time `json:"saved_at"`
}

const (
	DefaultMaxEntries = 100
	DefaultFilename   = "memories.json"
)

// Config bounds the store.
type Config struct {
	MaxEntries int    // <= 0 means DefaultMaxEntries
	Filename   string // used by FileBackend when constructed via NewFileBackend
}

func (c Config) maxEntries() int {
	if c.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return c.MaxEntries
}
