// Package llm normalizes the supported language-model providers behind one
// retry-aware client that keeps a rolling conversation window.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider selects the upstream API.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
)

// ParseProvider validates s (case-insensitive).
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
		return p, nil
	}
	return "", fmt.Errorf("llm: unknown provider %q (valid: openai, ollama, gemini)", s)
}

// ErrNotConfigured is returned at call time by a backend constructed without
// the credentials it needs.
var ErrNotConfigured = errors.New("llm: client not configured")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what a Backend sends upstream.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	TopP        float64 // 0 means provider default
	MaxTokens   int
}

// Completion is a backend reply. TotalTokens is zero when not reported.
type Completion struct {
	Text        string
	TotalTokens int
}

// Backend performs a single completion call against one provider.
type Backend interface {
	Provider() Provider
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

const (
	DefaultModel         = "gpt-4.1-mini"
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultOllamaModel   = "llama3.2"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultSystemPrompt  = "You are a friendly VTuber companion."
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 500
	DefaultTimeout       = 60 * time.Second

	// FallbackReply is returned whenever a reply cannot be produced.
	FallbackReply   = "I'm sorry, I'm having trouble thinking right now. Could you try again?"
	FallbackEmotion = "confused"

	// MaxHistory is the size of the rolling window (10 exchanges).
	MaxHistory = 20
)

// Config selects and parameterizes a backend.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	BaseURL       string // OpenAI-compatible endpoint, default DefaultOpenAIBaseURL
	OllamaBaseURL string // "/v1" is appended
	Temperature   *float64 // nil means DefaultTemperature; 0 is deterministic
	TopP          float64
	MaxTokens     int
	SystemPrompt  string
	Timeout       time.Duration
}

// Float returns a pointer to v, for Config.Temperature.
func Float(v float64) *float64 { return &v }

// DefaultConfig returns the OpenAI defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderOpenAI,
		Model:         DefaultModel,
		BaseURL:       DefaultOpenAIBaseURL,
		OllamaBaseURL: DefaultOllamaBaseURL,
		Temperature:   Float(DefaultTemperature),
		MaxTokens:     DefaultMaxTokens,
		SystemPrompt:  DefaultSystemPrompt,
		Timeout:       DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderGemini:
			c.Model = DefaultGeminiModel
		case ProviderOllama:
			c.Model = DefaultOllamaModel
		default:
			c.Model = d.Model
		}
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.OllamaBaseURL == "" {
		c.OllamaBaseURL = d.OllamaBaseURL
	}
	if c.Temperature == nil {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Response is the result of Client.Generate.
type Response struct {
	Response     string
	Emotion      string
	Model        string
	Provider     Provider
	TokensUsed   int
	UsedFallback bool
}

// Payload renders r as an event payload.
func (r Response) Payload() map[string]any {
	return map[string]any{
		"response":      r.Response,
		"emotion":       r.Emotion,
		"model":         r.Model,
		"provider":      string(r.Provider),
		"tokens_used":   r.TokensUsed,
		"used_fallback": r.UsedFallback,
	}
}

// GenerateOptions adjusts a single Generate call.
type GenerateOptions struct {
	SystemPrompt   string // overrides the configured prompt when non-empty
	IncludeHistory bool
}
