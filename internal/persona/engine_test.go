package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vtuber/internal/events"
)

func lunaMap() map[string]any {
	return map[string]any{
		"name": "Luna",
		"llm_config": map[string]any{
			"system_prompt": "You are Luna.",
			"temperature":   0.85,
		},
		"behavior": map[string]any{
			"use_emojis": true,
			"greetings":  []any{"Hiii!", "Hey there!"},
		},
		"emotion_map": map[string]any{"happy": "excited_jump"},
	}
}

func TestProfileFromMapDefaults(t *testing.T) {
	p, err := ProfileFromMap(map[string]any{"name": "Plain"})
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", p.Version)
	assert.Equal(t, "Unknown", p.Author)
	assert.Equal(t, 0.7, p.Temperature)
	assert.Equal(t, 0.9, p.TopP)
	assert.Equal(t, 200, p.MaxTokens)
	assert.Equal(t, []string{"Hello!"}, p.Greetings)
	assert.Equal(t, []string{"Goodbye!"}, p.Farewells)
	assert.Empty(t, p.EmotionMap)
}

func TestProfileFromMapValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"missing name":     {},
		"temperature high": {"name": "x", "llm_config": map[string]any{"temperature": 2.5}},
		"top_p negative":   {"name": "x", "llm_config": map[string]any{"top_p": -0.1}},
		"zero max tokens":  {"name": "x", "llm_config": map[string]any{"max_tokens": 0}},
		"emoji frequency":  {"name": "x", "behavior": map[string]any{"emoji_frequency": 1.5}},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ProfileFromMap(data)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestLoadProfilesSkipsInvalidAndLastWins(t *testing.T) {
	e := NewEngine(nil)
	n, err := e.LoadProfilesFrom(SliceSource{
		lunaMap(),
		{"name": "broken", "llm_config": map[string]any{"temperature": 9}},
		{"name": "LUNA", "llm_config": map[string]any{"system_prompt": "second"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, ok := e.Get("luna")
	require.True(t, ok)
	assert.Equal(t, "second", p.SystemPrompt)
	assert.Len(t, e.List(), 1)
}

func TestActivatePublishesPersonaLoaded(t *testing.T) {
	bus := events.NewBus(10)
	var got []events.Event
	bus.Subscribe(events.KindPersonaLoaded, func(ev events.Event) error {
		got = append(got, ev)
		return nil
	})

	e := NewEngine(bus)
	_, err := e.LoadProfilesFrom(SliceSource{lunaMap()})
	require.NoError(t, err)

	require.True(t, e.Activate(context.Background(), "Luna"))
	require.Len(t, got, 1)
	assert.Equal(t, "Luna", got[0].Str("persona_name"))
	assert.Equal(t, "You are Luna.", got[0].Str("system_prompt"))
	assert.Equal(t, 0.85, got[0].Payload["temperature"])
	assert.Equal(t, map[string]any{"use_emojis": true, "casual_language": false}, got[0].Payload["behavior"])
	assert.Equal(t, "persona_engine", got[0].Source)
}

func TestActivateUnknownKeepsActive(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.LoadProfilesFrom(SliceSource{lunaMap()})
	require.NoError(t, err)

	assert.False(t, e.Activate(context.Background(), "unknown"))
	_, ok := e.Active()
	assert.False(t, ok)

	require.True(t, e.Activate(context.Background(), "luna"))
	assert.False(t, e.Activate(context.Background(), "unknown"))
	active, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, "Luna", active.Name)
}

func TestReturnedProfilesDoNotAliasRegistry(t *testing.T) {
	e := NewEngine(nil, WithRand(func(int) int { return 0 }))
	_, err := e.LoadProfilesFrom(SliceSource{lunaMap()})
	require.NoError(t, err)
	require.True(t, e.Activate(context.Background(), "luna"))

	active, ok := e.Active()
	require.True(t, ok)
	active.EmotionMap["happy"] = "tampered"
	active.Greetings[0] = "tampered"

	got, ok := e.Get("luna")
	require.True(t, ok)
	got.EmotionMap["sad"] = "tampered"
	e.List()[0].EmotionMap["happy"] = "tampered"

	assert.Equal(t, "excited_jump", e.MapEmotion("happy"))
	assert.Equal(t, "sad", e.MapEmotion("sad"))
	assert.Equal(t, "Hiii!", e.Greeting())

	fresh, _ := e.Get("luna")
	assert.Equal(t, map[string]string{"happy": "excited_jump"}, fresh.EmotionMap)
}

func TestMapEmotion(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, "happy", e.MapEmotion("happy"))

	_, err := e.LoadProfilesFrom(SliceSource{lunaMap()})
	require.NoError(t, err)
	require.True(t, e.Activate(context.Background(), "luna"))

	assert.Equal(t, "excited_jump", e.MapEmotion("happy"))
	assert.Equal(t, "sad", e.MapEmotion("sad"))
}

func TestGreetingAndFarewell(t *testing.T) {
	e := NewEngine(nil, WithRand(func(n int) int { return n - 1 }))
	assert.Equal(t, DefaultGreeting, e.Greeting())
	assert.Equal(t, DefaultFarewell, e.Farewell())

	_, err := e.LoadProfilesFrom(SliceSource{lunaMap()})
	require.NoError(t, err)
	require.True(t, e.Activate(context.Background(), "luna"))

	assert.Equal(t, "Hey there!", e.Greeting())
	assert.Equal(t, DefaultFarewell, e.Farewell())
}

func TestDirSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	created, err := EnsureDefaults(dir)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDefaults(dir)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.json"),
		[]byte(`{"name":"Echo","llm_config":{"max_tokens":50},"emotion_map":{"sad":"sigh"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [unterminated"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	e := NewEngine(nil)
	n, err := e.LoadProfilesFrom(DirSource{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	names := []string{}
	for _, p := range e.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Echo", "Luna", "Sage"}, names)

	luna, ok := e.Get("LUNA")
	require.True(t, ok)
	want := DefaultProfiles()[0]
	assert.Equal(t, want, luna)

	echo, _ := e.Get("echo")
	assert.Equal(t, 50, echo.MaxTokens)
	assert.Equal(t, "sigh", echo.EmotionMap["sad"])
}

func TestDirSourceMissingDir(t *testing.T) {
	out, err := DirSource{Dir: filepath.Join(t.TempDir(), "nope")}.Profiles()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	_, err := SaveProfile(dir, DefaultProfiles()[0])
	require.NoError(t, err)

	bus := events.NewBus(10)
	changes := make(chan events.Event, 16)
	bus.Subscribe(events.KindPersonaChange, func(ev events.Event) error {
		select {
		case changes <- ev:
		default:
		}
		return nil
	})

	e := NewEngine(bus)
	_, err = e.LoadProfilesFrom(DirSource{Dir: dir})
	require.NoError(t, err)
	require.True(t, e.Activate(context.Background(), "luna"))

	w, err := NewWatcher(dir, e, bus, 30*time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	updated := DefaultProfiles()[0]
	updated.SystemPrompt = "You are Luna, now sleepy."
	_, err = SaveProfile(dir, updated)
	require.NoError(t, err)
	_, err = SaveProfile(dir, DefaultProfiles()[1])
	require.NoError(t, err)

	select {
	case ev := <-changes:
		assert.Equal(t, "persona_watcher", ev.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("no persona_change event after file update")
	}

	require.Eventually(t, func() bool { return len(e.List()) == 2 }, 5*time.Second, 20*time.Millisecond)
	active, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, "You are Luna, now sleepy.", active.SystemPrompt)

	w.Stop()
	w.Stop()
}
