package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("openai key follows provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("GEMINI_API_KEY", "gm-test")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	})

	t.Run("provider switch picks gemini key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_PROVIDER", "gemini")
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("GEMINI_API_KEY", "gm-test")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, "gm-test", cfg.LLM.APIKey)
	})

	t.Run("google key is the gemini fallback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_PROVIDER", "gemini")
		t.Setenv("GOOGLE_API_KEY", "goog-test")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "goog-test", cfg.LLM.APIKey)
	})

	t.Run("ollama ignores api keys", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_PROVIDER", "ollama")
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Empty(t, cfg.LLM.APIKey)
		assert.Equal(t, "http://gpu-box:11434", cfg.LLM.OllamaBaseURL)
	})

	t.Run("memory key enables encryption", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_MEMORY_KEY", "c2VjcmV0")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Memory.Encryption.Enabled)
		assert.Equal(t, "c2VjcmV0", cfg.Memory.Encryption.Key)
	})

	t.Run("redis addr selects redis backend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_REDIS_ADDR", "cache:6379")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, BackendRedis, cfg.Memory.Backend)
		assert.Equal(t, "cache:6379", cfg.Memory.Redis.Addr)
	})

	t.Run("log level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VTUBER_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
