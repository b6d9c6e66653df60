package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vtuber/internal/logging"
	"vtuber/internal/privacy"
	"vtuber/internal/resilience"
)

// Store is a bounded FIFO log of turns. When more than MaxEntries turns are
// appended, the oldest are evicted. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	turns   []Turn
	backend Backend
	cipher  privacy.Cipher
	errs    *resilience.Handler
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBackend sets where Persist and Load read and write snapshots.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithCipher encrypts snapshots at rest.
func WithCipher(c privacy.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store. errs supplies retries for backend I/O.
func NewStore(cfg Config, errs *resilience.Handler, opts ...Option) *Store {
	if errs == nil {
		errs = resilience.NewHandler()
	}
	s := &Store{
		cfg:  cfg,
		errs: errs,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a turn, evicting the oldest turns beyond MaxEntries.
func (s *Store) Append(role Role, content string, metadata map[string]any) (Turn, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return Turn{}, err
	}
	md, err := normalizeMetadata(metadata)
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{
		Timestamp: s.now().UTC().Round(0),
		Role:      role,
		Content:   content,
		Metadata:  md,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if over := len(s.turns) - s.cfg.maxEntries(); over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
	logging.MemoryDebug("added %s turn (%d/%d)", role, len(s.turns), s.cfg.maxEntries())
	return turn, nil
}

// Recent returns up to limit of the newest turns, newest last.
func (s *Store) Recent(limit int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.turns, limit)
}

// Search returns up to limit of the newest turns whose content contains query,
// compared case-insensitively, newest last.
func (s *Store) Search(query string, limit int) []Turn {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Turn
	for _, t := range s.turns {
		if strings.Contains(strings.ToLower(t.Content), q) {
			matches = append(matches, t)
		}
	}
	return tail(matches, limit)
}

// Message is a role/content pair shaped for a language-model request.
type Message struct {
	Role    Role
	Content string
}

// ConversationHistory returns the newest limit turns without metadata.
func (s *Store) ConversationHistory(limit int) []Message {
	recent := s.Recent(limit)
	out := make([]Message, len(recent))
	for i, t := range recent {
		out[i] = Message{Role: t.Role, Content: t.Content}
	}
	return out
}

// Clear drops every turn. Persisted snapshots are untouched until Persist.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	logging.Memory("memory cleared")
}

// Len returns the number of turns held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Stats summarizes the store.
type Stats struct {
	Total     int
	Max       int
	Encrypted bool
	Backend   string
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Total:     len(s.turns),
		Max:       s.cfg.maxEntries(),
		Encrypted: s.cipher != nil,
		Backend:   "none",
	}
	if s.backend != nil {
		st.Backend = s.backend.String()
	}
	return st
}

// Persist writes the full turn list to the backend, encrypting it when a
// cipher is configured. Backend writes are retried as memory_error; an
// encryption failure is reported as encryption_error without retry.
func (s *Store) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	s.mu.RLock()
	snap := snapshot{Memories: append([]Turn{}, s.turns...), SavedAt: s.now().UTC().Round(0)}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return resilience.NewFailure(resilience.KindMemoryError, fmt.Errorf("encoding snapshot: %w", err))
	}
	if s.cipher != nil {
		if data, err = s.cipher.Encrypt(data); err != nil {
			logging.MemoryError("failed to encrypt snapshot: %v", err)
			return resilience.NewFailure(resilience.KindEncryptionError, err)
		}
	}

	res := resilience.Execute(ctx, s.errs, resilience.KindMemoryError, s.errs.Policy(),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.Write(ctx, data)
		}, nil)
	if res.Err != nil {
		logging.MemoryError("failed to persist memories to %s: %v", s.backend, res.Err)
		return res.Err
	}
	logging.Memory("persisted %d memories to %s", len(snap.Memories), s.backend)
	return nil
}

// Load replaces the in-memory turns with the persisted snapshot. A missing
// snapshot is not an error. On any failure the store is left unchanged.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	res := resilience.Execute(ctx, s.errs, resilience.KindMemoryError, s.errs.Policy(),
		func(ctx context.Context) ([]byte, error) {
			data, err := s.backend.Read(ctx)
			if errors.Is(err, ErrNoSnapshot) {
				return nil, nil
			}
			return data, err
		}, nil)
	if res.Err != nil {
		logging.MemoryError("failed to read memories from %s: %v", s.backend, res.Err)
		return res.Err
	}
	data := res.Value
	if data == nil {
		logging.MemoryDebug("no snapshot in %s", s.backend)
		return nil
	}

	if s.cipher != nil {
		plain, err := s.cipher.Decrypt(data)
		if err != nil {
			logging.MemoryError("failed to decrypt snapshot: %v", err)
			return resilience.NewFailure(resilience.KindEncryptionError, err)
		}
		data = plain
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return resilience.NewFailure(resilience.KindMemoryError, fmt.Errorf("decoding snapshot: %w", err))
	}
	for i, t := range snap.Memories {
		if _, err := ParseRole(string(t.Role)); err != nil {
			return resilience.NewFailure(resilience.KindMemoryError, fmt.Errorf("entry %d: %w", i, err))
		}
	}

	turns := tail(snap.Memories, s.cfg.maxEntries())

	s.mu.Lock()
	s.turns = turns
	s.mu.Unlock()
	logging.Memory("loaded %d memories from %s", len(turns), s.backend)
	return nil
}

// tail copies the last n elements of turns (all of them when n < 0).
func tail(turns []Turn, n int) []Turn {
	if n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
