package persona

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"vtuber/internal/events"
	"vtuber/internal/logging"
)

// Engine is a registry of profiles keyed by lower-cased name with at most
// one active profile.
type Engine struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	active   *Profile
	bus      *events.Bus
	intn     func(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the random index source used by Greeting and Farewell.
func WithRand(intn func(n int) int) Option {
	return func(e *Engine) {
		if intn != nil {
			e.intn = intn
		}
	}
}

// NewEngine creates an empty engine publishing to bus (which may be nil).
func NewEngine(bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		profiles: make(map[string]Profile),
		bus:      bus,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers p, replacing any profile with the same lower-cased name.
func (e *Engine) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles[p.Key()] = p.Clone()
	return nil
}

// LoadProfilesFrom parses every dictionary from src and registers the valid
// ones (last-load-wins). Invalid entries are logged and skipped. It returns
// the number registered.
func (e *Engine) LoadProfilesFrom(src Source) (int, error) {
	parsed, err := parse(src)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range parsed {
		e.profiles[p.Key()] = p
	}
	logging.Persona("loaded %d persona(s), %d registered", len(parsed), len(e.profiles))
	return len(parsed), nil
}

// Reload replaces the registry with the profiles from src. The active profile
// is refreshed when its name still exists and kept as-is otherwise.
func (e *Engine) Reload(src Source) (int, error) {
	parsed, err := parse(src)
	if err != nil {
		return 0, err
	}
	next := make(map[string]Profile, len(parsed))
	for _, p := range parsed {
		next[p.Key()] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles = next
	if e.active != nil {
		if p, ok := next[e.active.Key()]; ok {
			active := p.Clone()
			e.active = &active
		} else {
			logging.PersonaWarn("active persona %s no longer present after reload", e.active.Name)
		}
	}
	logging.Persona("reloaded %d persona(s)", len(next))
	return len(next), nil
}

func parse(src Source) ([]Profile, error) {
	raw, err := src.Profiles()
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(raw))
	for i, data := range raw {
		p, err := ProfileFromMap(data)
		if err != nil {
			logging.PersonaError("skipping persona entry %d: %v", i, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get looks up a profile by case-insensitive name.
func (e *Engine) Get(name string) (Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[Profile{Name: name}.Key()]
	return p.Clone(), ok
}

// List returns the registered profiles sorted by key.
func (e *Engine) List() []Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Profile, 0, len(e.profiles))
	for _, p := range e.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Activate makes name the active profile and publishes persona_loaded.
// An unknown name returns false and leaves the active profile unchanged.
func (e *Engine) Activate(ctx context.Context, name string) bool {
	e.mu.Lock()
	p, ok := e.profiles[Profile{Name: name}.Key()]
	if !ok {
		e.mu.Unlock()
		logging.PersonaError("persona not found: %s", name)
		return false
	}
	active := p.Clone()
	e.active = &active
	e.mu.Unlock()

	logging.Persona("activated persona: %s", p.Name)
	if e.bus != nil {
		e.bus.Publish(ctx, events.NewEvent(events.KindPersonaLoaded, LoadedPayload(p), "persona_engine"))
	}
	return true
}

// LoadedPayload is the persona_loaded event payload for p.
func LoadedPayload(p Profile) map[string]any {
	return map[string]any{
		"persona_name":  p.Name,
		"system_prompt": p.SystemPrompt,
		"temperature":   p.Temperature,
		"top_p":         p.TopP,
		"max_tokens":    p.MaxTokens,
		"behavior": map[string]any{
			"use_emojis":      p.UseEmojis,
			"casual_language": p.CasualLanguage,
		},
	}
}

// Active returns the active profile, if any.
func (e *Engine) Active() (Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return Profile{}, false
	}
	return e.active.Clone(), true
}

// Greeting picks a random greeting of the active profile.
func (e *Engine) Greeting() string {
	return e.pick(func(p Profile) []string { return p.Greetings }, DefaultGreeting)
}

// Farewell picks a random farewell of the active profile.
func (e *Engine) Farewell() string {
	return e.pick(func(p Profile) []string { return p.Farewells }, DefaultFarewell)
}

func (e *Engine) pick(list func(Profile) []string, def string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return def
	}
	items := list(*e.active)
	if len(items) == 0 {
		return def
	}
	return items[e.intn(len(items))]
}

// MapEmotion translates label through the active profile's emotion map,
// returning label unchanged when there is no mapping.
func (e *Engine) MapEmotion(label string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return label
	}
	if mapped, ok := e.active.EmotionMap[label]; ok {
		return mapped
	}
	return label
}
