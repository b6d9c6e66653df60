package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Get(CategoryEvents).Info("hello %s", "world")
	LLMError("boom: %v", os.ErrNotExist)
}

func TestCategoryLoggersAreNamed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Events("published %d", 3)
	MemoryWarn("evicted %s", "turn")
	Get(CategoryPersona).With("persona", "luna").Debug("activated")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "events", entries[0].LoggerName)
	assert.Equal(t, "published 3", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "memory", entries[1].LoggerName)
	assert.Equal(t, "persona", entries[2].LoggerName)
	assert.Equal(t, "luna", entries[2].ContextMap()["persona"])
}

func TestInitializeWritesFileAndFiltersCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vtuber.log")
	err := Initialize(Config{
		Level:      "debug",
		Format:     "json",
		File:       path,
		Categories: map[string]bool{"tts": false},
	})
	require.NoError(t, err)
	t.Cleanup(func() { SetLogger(nil) })

	assert.False(t, IsCategoryEnabled(CategoryTTS))
	assert.True(t, IsCategoryEnabled(CategoryLLM))

	LLM("request sent")
	TTS("should not appear")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "request sent"))
	assert.False(t, strings.Contains(content, "should not appear"))
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	err := Initialize(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestTimerStopWithThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	timer := StartTimer(CategoryLLM, "generate")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.Greater(t, elapsed, time.Duration(0))
	require.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}
