// Package persona manages named behavior profiles and the active one.
package persona

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

const (
	DefaultGreeting = "Hello!"
	DefaultFarewell = "Goodbye!"
)

// ErrInvalidProfile is returned by ProfileFromMap for out-of-range values.
var ErrInvalidProfile = errors.New("persona: invalid profile")

// Profile is a persona definition. The Engine stores and returns copies;
// use Clone before handing one to code that may mutate it.
type Profile struct {
	Name        string
	Version     string
	Description string
	Author      string
	Tags        []string

	SystemPrompt string
	Temperature  float64
	TopP         float64
	MaxTokens    int

	UseEmojis      bool
	EmojiFrequency float64
	CasualLanguage bool
	Greetings      []string
	Farewells      []string

	EmotionMap map[string]string
}

// Clone returns a copy of p that shares no slices or maps with it.
func (p Profile) Clone() Profile {
	p.Tags = slices.Clone(p.Tags)
	p.Greetings = slices.Clone(p.Greetings)
	p.Farewells = slices.Clone(p.Farewells)
	p.EmotionMap = maps.Clone(p.EmotionMap)
	return p
}

// Key is the lower-cased name used for lookups.
func (p Profile) Key() string {
	return strings.ToLower(p.Name)
}

// Validate checks the documented ranges.
func (p Profile) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	case p.Temperature < 0 || p.Temperature > 2:
		return fmt.Errorf("%w: temperature %v outside [0,2]", ErrInvalidProfile, p.Temperature)
	case p.TopP < 0 || p.TopP > 1:
		return fmt.Errorf("%w: top_p %v outside [0,1]", ErrInvalidProfile, p.TopP)
	case p.MaxTokens <= 0:
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidProfile, p.MaxTokens)
	case p.EmojiFrequency < 0 || p.EmojiFrequency > 1:
		return fmt.Errorf("%w: emoji_frequency %v outside [0,1]", ErrInvalidProfile, p.EmojiFrequency)
	case len(p.Greetings) == 0 || len(p.Farewells) == 0:
		return fmt.Errorf("%w: greetings and farewells must be non-empty", ErrInvalidProfile)
	}
	return nil
}

// document is the on-disk shape of a profile.
type document struct {
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version" json:"version"`
	Description string            `yaml:"description" json:"description"`
	Author      string            `yaml:"author" json:"author"`
	Tags        []string          `yaml:"tags" json:"tags"`
	LLMConfig   llmConfigDoc      `yaml:"llm_config" json:"llm_config"`
	Behavior    behaviorDoc       `yaml:"behavior" json:"behavior"`
	EmotionMap  map[string]string `yaml:"emotion_map" json:"emotion_map"`
}

type llmConfigDoc struct {
	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	TopP         float64 `yaml:"top_p" json:"top_p"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
}

type behaviorDoc struct {
	UseEmojis      bool     `yaml:"use_emojis" json:"use_emojis"`
	EmojiFrequency float64  `yaml:"emoji_frequency" json:"emoji_frequency"`
	CasualLanguage bool     `yaml:"casual_language" json:"casual_language"`
	Greetings      []string `yaml:"greetings" json:"greetings"`
	Farewells      []string `yaml:"farewells" json:"farewells"`
}

func (p Profile) document() document {
	return document{
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Author:      p.Author,
		Tags:        p.Tags,
		LLMConfig: llmConfigDoc{
			SystemPrompt: p.SystemPrompt,
			Temperature:  p.Temperature,
			TopP:         p.TopP,
			MaxTokens:    p.MaxTokens,
		},
		Behavior: behaviorDoc{
			UseEmojis:      p.UseEmojis,
			EmojiFrequency: p.EmojiFrequency,
			CasualLanguage: p.CasualLanguage,
			Greetings:      p.Greetings,
			Farewells:      p.Farewells,
		},
		EmotionMap: p.EmotionMap,
	}
}

// ProfileFromMap builds a Profile from a parsed profile dictionary in the
// nested llm_config / behavior / emotion_map shape, filling defaults for
// absent fields and validating the result.
func ProfileFromMap(data map[string]any) (Profile, error) {
	llmCfg := subMap(data, "llm_config")
	behavior := subMap(data, "behavior")

	p := Profile{
		Name:        str(data, "name", ""),
		Version:     str(data, "version", "1.0.0"),
		Description: str(data, "description", ""),
		Author:      str(data, "author", "Unknown"),
		Tags:        stringSet(data["tags"]),

		SystemPrompt: str(llmCfg, "system_prompt", ""),
		Temperature:  num(llmCfg, "temperature", 0.7),
		TopP:         num(llmCfg, "top_p", 0.9),
		MaxTokens:    int(num(llmCfg, "max_tokens", 200)),

		UseEmojis:      boolean(behavior, "use_emojis"),
		EmojiFrequency: num(behavior, "emoji_frequency", 0),
		CasualLanguage: boolean(behavior, "casual_language"),
		Greetings:      stringList(behavior["greetings"], DefaultGreeting),
		Farewells:      stringList(behavior["farewells"], DefaultFarewell),

		EmotionMap: stringMap(data["emotion_map"]),
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func subMap(m map[string]any, key string) map[string]any {
	switch v := m[key].(type) {
	case map[string]any:
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return map[string]any{}
}

func str(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return def
}

func num(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return def
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func stringList(v any, def string) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok && len(ss) > 0 {
			return append([]string(nil), ss...)
		}
		return []string{def}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, fmt.Sprint(it))
		}
	}
	if len(out) == 0 {
		return []string{def}
	}
	return out
}

// stringSet de-duplicates and sorts tags.
func stringSet(v any) []string {
	seen := make(map[string]struct{})
	for _, s := range stringList(v, "") {
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func stringMap(v any) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]any:
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
	case map[any]any:
		for k, val := range m {
			out[fmt.Sprint(k)] = fmt.Sprint(val)
		}
	}
	return out
}

// DefaultProfiles returns the built-in Luna and Sage personas.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:           "Luna",
			Version:        "1.0.0",
			Description:    "A cheerful and playful friend",
			Author:         "AI VTuber Team",
			Tags:           []string{"cheerful", "friendly", "playful"},
			SystemPrompt:   "You are Luna, a cheerful and playful VTuber. You love to use emojis and make jokes. Be friendly and supportive!",
			Temperature:    0.85,
			TopP:           0.9,
			MaxTokens:      200,
			UseEmojis:      true,
			EmojiFrequency: 0.7,
			CasualLanguage: true,
			Greetings:      []string{"Hey there! 👋", "Hiii! 😊", "What's up? ✨"},
			Farewells:      []string{"See ya! 👋", "Bye bye! 💕", "Catch you later! 😄"},
			EmotionMap: map[string]string{
				"happy":   "excited_jump",
				"sad":     "pout",
				"excited": "happy_bounce",
			},
		},
		{
			Name:           "Sage",
			Version:        "1.0.0",
			Description:    "A calm and knowledgeable mentor",
			Author:         "AI VTuber Team",
			Tags:           []string{"calm", "mentor", "wise"},
			SystemPrompt:   "You are Sage, a wise and knowledgeable mentor. Speak calmly and provide thoughtful guidance. Be patient and educational.",
			Temperature:    0.6,
			TopP:           0.9,
			MaxTokens:      200,
			EmojiFrequency: 0.1,
			Greetings:      []string{"Greetings.", "Welcome.", "Good day."},
			Farewells:      []string{"Farewell.", "Until we meet again.", "Take care."},
			EmotionMap: map[string]string{
				"happy":   "gentle_smile",
				"sad":     "concerned_nod",
				"excited": "approving_nod",
			},
		},
	}
}
