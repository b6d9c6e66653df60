package llm

import (
	"context"
	"fmt"

	"vtuber/internal/logging"
)

// NewBackend constructs the backend for cfg.Provider. Missing credentials
// yield a degraded backend rather than an error.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	cfg = cfg.withDefaults()
	logging.LLMDebug("creating backend: provider=%s model=%s", cfg.Provider, cfg.Model)

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIBackend(cfg), nil
	case ProviderOllama:
		return NewOllamaBackend(cfg), nil
	case ProviderGemini:
		b, err := NewGeminiBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %s", cfg.Provider)
	}
}
