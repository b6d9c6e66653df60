package companion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"vtuber/internal/config"
	"vtuber/internal/llm"
	"vtuber/internal/logging"
	"vtuber/internal/memory"
	"vtuber/internal/persona"
	"vtuber/internal/privacy"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.Memory.StoragePath = filepath.Join(dir, "memory")
	cfg.Persona.Directory = filepath.Join(dir, "personas")
	cfg.Persona.Watch = false
	return cfg
}

func TestOpenWiresFileSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persona.Default = "sage"
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, llm.ProviderOllama, s.LLM.Provider())
	assert.Equal(t, llm.DefaultOllamaModel, s.LLM.Model())

	active, ok := s.Personas.Active()
	require.True(t, ok)
	assert.Equal(t, "Sage", active.Name)

	entries, err := os.ReadDir(cfg.Persona.Directory)
	require.NoError(t, err)
	assert.Len(t, entries, len(persona.DefaultProfiles()))

	require.NoError(t, s.Companion.Start(ctx))
	_, err = s.Memory.Append(memory.RoleUser, "remember the cake", nil)
	require.NoError(t, err)
	require.NoError(t, s.Companion.Shutdown(ctx))

	_, err = os.Stat(filepath.Join(cfg.Memory.StoragePath, memory.DefaultFilename))
	assert.NoError(t, err)
}

func TestOpenRedisEncryptedSession(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Memory.Backend = config.BackendRedis
	cfg.Memory.Redis.Addr = mr.Addr()
	cfg.Memory.Encryption.Enabled = true
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = s.Memory.Append(memory.RoleUser, "my secret", nil)
	require.NoError(t, err)
	require.NoError(t, s.Companion.Shutdown(ctx))
	require.NoError(t, s.Close())

	stored, err := mr.Get(cfg.Memory.Redis.Key)
	require.NoError(t, err)
	assert.NotContains(t, stored, "my secret")

	_, err = os.Stat(filepath.Join(cfg.Memory.StoragePath, privacy.DefaultKeyFile))
	require.NoError(t, err, "relative key file lives in the storage path")

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Companion.Start(ctx))
	turns := reopened.Memory.Recent(-1)
	require.Len(t, turns, 1)
	assert.Equal(t, "my secret", turns[0].Content)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Memory.Backend = config.BackendRedis
	cfg.Memory.Redis.Addr = addr

	core, logs := observer.New(zap.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)

	failures := logs.FilterLevelExact(zap.ErrorLevel).FilterMessageSnippet("session open failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "boot", failures[0].LoggerName)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "claude"
	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "llm.provider")
}

func TestOpenWithWatcherStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.Persona.Watch = true
	cfg.Persona.Debounce = "20ms"

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestOpenWritesRedactedAuditTrail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.AuditFile = filepath.Join(t.TempDir(), "audit.jsonl")
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Companion.Start(ctx))
	require.NoError(t, s.Companion.Shutdown(ctx))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(cfg.Logging.AuditFile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"event":"persona_loaded"`)
	assert.Contains(t, text, `"event":"system_ready"`)
	assert.Contains(t, text, `"event":"system_shutdown"`)
	assert.Contains(t, text, `"session":"`+s.ID+`"`)

	luna, ok := s.Personas.Get("luna")
	require.True(t, ok)
	assert.NotContains(t, text, luna.SystemPrompt)
}
