// Package config loads the companion's YAML configuration, applies
// environment overrides and converts sections into the plain structs the
// core packages take.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"vtuber/internal/logging"
	"vtuber/internal/resilience"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "config.yaml"

// Config holds all companion configuration.
type Config struct {
	Name string `yaml:"name"`

	LLM     LLMConfig     `yaml:"llm"`
	Retry   RetryConfig   `yaml:"retry"`
	Events  EventsConfig  `yaml:"events"`
	Memory  MemoryConfig  `yaml:"memory"`
	Persona PersonaConfig `yaml:"persona"`
	TTS     TTSConfig     `yaml:"tts"`
	Logging LoggingConfig `yaml:"logging"`
}

// RetryConfig configures the shared error handler.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelay      string  `yaml:"initial_delay"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	OperationTimeout  string  `yaml:"operation_timeout"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	MaxHistory int `yaml:"max_history"`
}

// PersonaConfig configures where profiles live and which one starts active.
type PersonaConfig struct {
	Directory string `yaml:"directory"`
	Default   string `yaml:"default"`
	Watch     bool   `yaml:"watch"`
	Debounce  string `yaml:"debounce"`
}

// TTSConfig configures the external speech command.
type TTSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "vtuber",
		LLM:  defaultLLMConfig(),
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      "1s",
			BackoffMultiplier: 2.0,
			OperationTimeout:  "30s",
		},
		Events: EventsConfig{
			MaxHistory: 1000,
		},
		Memory: defaultMemoryConfig(),
		Persona: PersonaConfig{
			Directory: "personas",
			Default:   "luna",
			Watch:     true,
			Debounce:  "300ms",
		},
		TTS: TTSConfig{
			Enabled: false,
			Command: "edge-tts",
			Args:    []string{"--voice", "th-TH-PremwadeeNeural", "--text"},
			Timeout: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Debug("no config at %s, using defaults", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// overrideVars are the environment variables applyEnvOverrides reads.
var overrideVars = []string{
	"VTUBER_PROVIDER",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"OLLAMA_BASE_URL",
	"VTUBER_MEMORY_KEY",
	"VTUBER_REDIS_ADDR",
	"VTUBER_LOG_LEVEL",
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	log := logging.Get(logging.CategoryConfig)

	if p := os.Getenv("VTUBER_PROVIDER"); p != "" {
		c.LLM.Provider = p
		log.Debug("provider overridden from environment: %s", p)
	}

	switch c.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}

	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		c.LLM.OllamaBaseURL = url
	}

	if key := os.Getenv("VTUBER_MEMORY_KEY"); key != "" {
		c.Memory.Encryption.Enabled = true
		c.Memory.Encryption.Key = key
	}

	if addr := os.Getenv("VTUBER_REDIS_ADDR"); addr != "" {
		c.Memory.Backend = BackendRedis
		c.Memory.Redis.Addr = addr
	}

	if level := os.Getenv("VTUBER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if _, err := c.GetRetryPolicy(); err != nil {
		return err
	}
	if c.Events.MaxHistory < 1 {
		return fmt.Errorf("events.max_history must be >= 1, got %d", c.Events.MaxHistory)
	}
	if err := c.Memory.validate(); err != nil {
		return err
	}
	if c.TTS.Enabled && c.TTS.Command == "" {
		return fmt.Errorf("tts.command is required when tts is enabled")
	}
	return c.Logging.validate()
}

// GetRetryPolicy converts the retry section. Unparseable durations are errors.
func (c *Config) GetRetryPolicy() (resilience.RetryPolicy, error) {
	p := resilience.DefaultRetryPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.BackoffMultiplier = c.Retry.BackoffMultiplier

	var err error
	if p.InitialDelay, err = parseDuration("retry.initial_delay", c.Retry.InitialDelay, p.InitialDelay); err != nil {
		return p, err
	}
	if p.OperationTimeout, err = parseDuration("retry.operation_timeout", c.Retry.OperationTimeout, p.OperationTimeout); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("retry: %w", err)
	}
	return p, nil
}

// GetPersonaDebounce returns the watcher debounce, defaulting to 300ms.
func (c *Config) GetPersonaDebounce() time.Duration {
	return durationOr(c.Persona.Debounce, 300*time.Millisecond)
}

// GetTTSTimeout returns the speech command timeout, defaulting to 30s.
func (c *Config) GetTTSTimeout() time.Duration {
	return durationOr(c.TTS.Timeout, 30*time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
