package config

import (
	"fmt"
	"time"

	"vtuber/internal/llm"
)

// ValidProviders lists the supported language-model providers.
var ValidProviders = []string{"openai", "ollama", "gemini"}

// LLMConfig configures the language-model client.
type LLMConfig struct {
	Provider      string  `yaml:"provider"` // openai, ollama, gemini
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	OllamaBaseURL string  `yaml:"ollama_base_url"`
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"top_p"`
	MaxTokens     int     `yaml:"max_tokens"`
	SystemPrompt  string  `yaml:"system_prompt"`
	Timeout       string  `yaml:"timeout"`
}

func defaultLLMConfig() LLMConfig {
	d := llm.DefaultConfig()
	return LLMConfig{
		Provider:      string(d.Provider),
		Model:         d.Model,
		BaseURL:       d.BaseURL,
		OllamaBaseURL: d.OllamaBaseURL,
		Temperature:   *d.Temperature,
		MaxTokens:     d.MaxTokens,
		SystemPrompt:  d.SystemPrompt,
		Timeout:       d.Timeout.String(),
	}
}

func (c LLMConfig) validate() error {
	if _, err := llm.ParseProvider(c.Provider); err != nil {
		return fmt.Errorf("llm.provider: %w", err)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("llm.top_p must be within [0, 1], got %v", c.TopP)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("llm.timeout: %w", err)
		}
	}
	return nil
}

// GetLLMTimeout returns the request timeout, defaulting to llm.DefaultTimeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return durationOr(c.LLM.Timeout, llm.DefaultTimeout)
}

// LLMSettings converts the llm section. A model left at the OpenAI default
// is cleared for other providers so their own default applies.
func (c *Config) LLMSettings() llm.Config {
	provider, err := llm.ParseProvider(c.LLM.Provider)
	if err != nil {
		provider = llm.ProviderOpenAI
	}
	model := c.LLM.Model
	if provider != llm.ProviderOpenAI && model == llm.DefaultModel {
		model = ""
	}
	return llm.Config{
		Provider:      provider,
		Model:         model,
		APIKey:        c.LLM.APIKey,
		BaseURL:       c.LLM.BaseURL,
		OllamaBaseURL: c.LLM.OllamaBaseURL,
		Temperature:   llm.Float(c.LLM.Temperature),
		TopP:          c.LLM.TopP,
		MaxTokens:     c.LLM.MaxTokens,
		SystemPrompt:  c.LLM.SystemPrompt,
		Timeout:       c.GetLLMTimeout(),
	}
}
